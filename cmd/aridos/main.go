// Command aridos runs the central server, the terminal agent and admin tasks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "aridos",
		Short:         "Gestión de materiales y maquinaria de Áridos Valdez",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("ARIDOS_CONFIG"),
		"ruta al archivo YAML de configuración (env ARIDOS_CONFIG)")

	root.AddCommand(
		newServerCmd(&configPath),
		newAgentCmd(&configPath),
		newMigrateCmd(&configPath),
		newCreateUserCmd(&configPath),
		newHashPasswordCmd(),
		newVersionCmd(),
	)
	return root
}
