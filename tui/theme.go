package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

type RGB [3]uint8

// Palette is a gradient the color roles are looked up in.
type Palette struct {
	Name   string
	Colors []RGB
}

// DefaultPalette runs from deep purple to bright yellow.
func DefaultPalette() *Palette {
	return &Palette{
		Name: "dusk",
		Colors: []RGB{
			{0x1a, 0x10, 0x2c},
			{0x3b, 0x1f, 0x4f},
			{0x6c, 0x2f, 0x76},
			{0xa8, 0x3c, 0x8f},
			{0xd9, 0x5a, 0x9b},
			{0xf0, 0x7a, 0x7a},
			{0xf7, 0xa3, 0x4f},
			{0xfa, 0xd4, 0x3c},
			{0xff, 0xf2, 0x6e},
		},
	}
}

// Lookup returns interpolated color for normalized value 0-1
func (p *Palette) Lookup(norm float64) RGB {
	if norm <= 0 {
		return p.Colors[0]
	}
	if norm >= 1 {
		return p.Colors[len(p.Colors)-1]
	}

	pos := norm * float64(len(p.Colors)-1)
	i := int(pos)
	frac := pos - float64(i)

	c0 := p.Colors[i]
	c1 := p.Colors[i+1]

	return RGB{
		lerp(c0[0], c1[0], frac),
		lerp(c0[1], c1[1], frac),
		lerp(c0[2], c1[2], frac),
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a)*(1-t) + float64(b)*t)
}

// Color roles mapped to palette positions (0-1)
const (
	RoleMuted   = 0.2
	RoleFG      = 0.4
	RoleAccent  = 0.5
	RoleActive  = 0.7
	RoleWarning = 0.8
	RoleSuccess = 1.0
)

// Theme holds the styles the monitor renders with.
type Theme struct {
	Palette *Palette

	Header  lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Dim     lipgloss.Style
	Playing lipgloss.Style
	Paused  lipgloss.Style
	Warning lipgloss.Style
}

func NewTheme(p *Palette) *Theme {
	if p == nil {
		p = DefaultPalette()
	}
	color := func(role float64) lipgloss.Color {
		c := p.Lookup(role)
		return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
	}
	return &Theme{
		Palette: p,
		Header:  lipgloss.NewStyle().Foreground(color(RoleAccent)).Bold(true),
		Label:   lipgloss.NewStyle().Foreground(color(RoleMuted)),
		Value:   lipgloss.NewStyle().Foreground(color(RoleFG)),
		Dim:     lipgloss.NewStyle().Foreground(color(RoleMuted)).Faint(true),
		Playing: lipgloss.NewStyle().Foreground(color(RoleSuccess)),
		Paused:  lipgloss.NewStyle().Foreground(color(RoleActive)),
		Warning: lipgloss.NewStyle().Foreground(color(RoleWarning)),
	}
}
