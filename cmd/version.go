package cmd

import (
	"runtime"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"
)

var (
	version   = "0.1.0"
	goVersion = runtime.Version()
	platform  = runtime.GOOS + "/" + runtime.GOARCH
)

func versionCmd() *cobra.Command {
	var banner bool

	cmd := &cobra.Command{
		Use:         "version",
		Short:       "Show version information",
		Annotations: map[string]string{annotationOffline: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			if banner {
				cmd.Println(figure.NewFigure("tenantctl", "cybermedium", true).String())
			}
			cmd.Println("tenantctl version:", version)
			cmd.Println("Go version:", goVersion)
			cmd.Println("Platform:", platform)
		},
	}

	cmd.Flags().BoolVar(&banner, "banner", false, "Print an ASCII banner")

	return cmd
}
