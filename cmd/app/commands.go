package app

import (
	"fmt"
	"time"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/vietanh2810/sdeconomy/internal/config"
	"github.com/vietanh2810/sdeconomy/internal/pkg/jwthelper"
)

const (
	configFlag = "config"
	actorFlag  = "actor"
	ttlFlag    = "ttl"

	defaultConfigPath = "./cmd/app/config.yml"
)

func configFlags() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		configFlag: &cobraflags.StringFlag{
			Name:  configFlag,
			Value: defaultConfigPath,
			Usage: "Path to the YAML config file (env vars override its keys)",
		},
	}
}

// NewRootCommand builds the CLI. Without a subcommand it serves the API.
func NewRootCommand() *cobra.Command {
	flags := configFlags()
	root := &cobra.Command{
		Use:          "sdeconomy",
		Short:        "Supply and demand economy server",
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return Start(flags[configFlag].GetString())
		},
	}
	cobraflags.RegisterMap(root, flags)

	root.AddCommand(newServeCommand(), newMigrateCommand(), newStatusCommand(), newTokenCommand())
	return root
}

func newServeCommand() *cobra.Command {
	flags := configFlags()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, decay scheduler and periodic snapshots",
		RunE: func(_ *cobra.Command, _ []string) error {
			return Start(flags[configFlag].GetString())
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}

func newMigrateCommand() *cobra.Command {
	flags := configFlags()
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			return Migrate(flags[configFlag].GetString())
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}

func newStatusCommand() *cobra.Command {
	flags := configFlags()
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the schema version and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := Status(flags[configFlag].GetString())
			if err != nil {
				return err
			}
			cmd.Print(out)
			return nil
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}

func newTokenCommand() *cobra.Command {
	flags := configFlags()
	flags[actorFlag] = &cobraflags.StringFlag{
		Name:  actorFlag,
		Usage: "Actor UUID to put in the token subject",
	}
	flags[ttlFlag] = &cobraflags.StringFlag{
		Name:  ttlFlag,
		Value: "24h",
		Usage: "Token lifetime",
	}

	var admin bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an actor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.Load(flags[configFlag].GetString())
			if err != nil {
				return fmt.Errorf("failed to initialize config -> %w", err)
			}

			ttl, err := time.ParseDuration(flags[ttlFlag].GetString())
			if err != nil {
				return fmt.Errorf("invalid --%s -> %w", ttlFlag, err)
			}

			token, err := jwthelper.GenerateToken([]byte(conf.API.JWTSigningKey), flags[actorFlag].GetString(), admin, ttl)
			if err != nil {
				return fmt.Errorf("jwthelper.GenerateToken -> %w", err)
			}

			cmd.Println(token)
			return nil
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant admin routes")
	return cmd
}
