package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"parnass/internal/config"
	"parnass/internal/pkg/jwt"
)

// newTokenCmd issues administrator tokens. There is no login flow; operators
// hand these out to tenant administrators.
func newTokenCmd() *cobra.Command {
	var (
		subject  string
		role     string
		tenantID string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an administrator JWT",
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != jwt.RoleAdmin && role != jwt.RoleSuperAdmin {
				return fmt.Errorf("--role must be %q or %q", jwt.RoleAdmin, jwt.RoleSuperAdmin)
			}
			if role == jwt.RoleAdmin && tenantID == "" {
				return fmt.Errorf("--tenant is required for role %q", jwt.RoleAdmin)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, err := jwt.New(cfg.JWT.Secret, cfg.JWT.TTL).GenerateToken(subject, role, tenantID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject")
	cmd.Flags().StringVar(&role, "role", jwt.RoleAdmin, "admin or superadmin")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant the admin manages")
	return cmd
}
