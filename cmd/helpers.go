package cmd

import (
	"net"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/keyrelay/internal/client"
	"github.com/firefly-engineering/keyrelay/internal/config"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// defaultAddr is the address of a proxy started with the same environment.
func defaultAddr() string {
	port := strconv.Itoa(config.DefaultPort)
	if v := os.Getenv(config.EnvPort); v != "" {
		port = v
	}
	return net.JoinHostPort("localhost", port)
}

// addAddrFlag registers --addr for commands that talk to a running proxy.
func addAddrFlag(c *cobra.Command, p *string) {
	c.Flags().StringVar(p, "addr", "", "Proxy address (default localhost:$PORT)")
}

// newClient returns a management client for addr, or the default address.
func newClient(addr string) (*client.Client, error) {
	if addr == "" {
		addr = defaultAddr()
	}
	return client.New(addr)
}
