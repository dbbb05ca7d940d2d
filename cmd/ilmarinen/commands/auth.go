package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	awscp "github.com/yairfalse/ilmarinen/internal/controlplane/aws"
	"github.com/yairfalse/ilmarinen/pkg/config"
)

func newAuthCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Show which AWS credentials would be used and verify them",
		Long: `Report the local AWS credential source and region, then call STS
GetCallerIdentity to confirm the credentials work.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			noColor, _ := cmd.Flags().GetBool("no-color")
			paint := func(s string, attr color.Attribute) string {
				if noColor {
					return s
				}
				return color.New(attr).Sprint(s)
			}

			local := config.NewAuthChecker().CheckAWS()
			region, _ := cmd.Flags().GetString("region")
			if region == "" {
				region = local.Region
			}
			profile, _ := cmd.Flags().GetString("profile")
			if profile == "" {
				profile = local.Profile
			}

			fmt.Fprintf(w, "Credentials: %s\n", local.Message)
			if profile != "" {
				fmt.Fprintf(w, "Profile:     %s\n", profile)
			}
			if region != "" {
				fmt.Fprintf(w, "Region:      %s\n", region)
			}

			clients, err := c.factory.NewClients(commandContext(cmd), awscp.ClientConfig{Region: region, Profile: profile})
			if err != nil {
				fmt.Fprintln(w, paint("Not authenticated", color.FgRed))
				return err
			}
			arn, err := clients.ValidateCredentials(commandContext(cmd))
			if err != nil {
				fmt.Fprintln(w, paint("Not authenticated", color.FgRed))
				return err
			}
			fmt.Fprintf(w, "%s as %s\n", paint("Authenticated", color.FgGreen), arn)
			return nil
		},
	}
}
