// Package tui provides the live status view for keyrelay watch.
//
// The view polls a running proxy's /health endpoint through a
// monitor.Monitor and redraws the key count and cursor on every sample:
//
//	mon := monitor.New(2*time.Second, c)
//	err := tui.RunWatch(mon, c, c.Addr())
//
// Pressing r calls /rotate-key; q quits.
//
// # Dependencies
//
// Uses the Charm libraries:
//   - github.com/charmbracelet/bubbletea - TUI framework
//   - github.com/charmbracelet/bubbles - spinner
//   - github.com/charmbracelet/lipgloss - Styling
package tui
