package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newNewCommand creates (or opens, idempotently) the object store database at
// --db, applying its schema. store.Open already runs CREATE TABLE IF NOT
// EXISTS, so this command's only job is to surface a clear confirmation
// rather than silently succeeding on first use of some other command.
func newNewCommand(rs *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Initialize a fresh object store database",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rs.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			fmt.Printf("initialized store at %s\n", rs.dbPath)
			return nil
		},
	}
}
