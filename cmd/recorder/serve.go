// cmd/recorder/serve.go
package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tamzrod/capture-sync/internal/syncclient"
	"github.com/tamzrod/capture-sync/internal/syncserver"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a coordination server; type save or wait on stdin to switch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := syncserver.NewServer(v.GetString("listen"), v.GetIntSlice("allow"), slog.Default())
			if err := srv.SetInstruction(syncclient.Response(v.GetString("instruction"))); err != nil {
				return err
			}

			go operatorInput(cmd.Context(), cmd.InOrStdin(), srv)
			return srv.Start(cmd.Context())
		},
	}

	cmd.Flags().String("listen", ":5005", "listen address")
	cmd.Flags().IntSlice("allow", nil, "device ids allowed to record (empty: all)")
	cmd.Flags().String("instruction", string(syncclient.RespWait), "initial instruction (save or wait)")
	_ = v.BindPFlag("listen", cmd.Flags().Lookup("listen"))
	_ = v.BindPFlag("allow", cmd.Flags().Lookup("allow"))
	_ = v.BindPFlag("instruction", cmd.Flags().Lookup("instruction"))
	return cmd
}

// operatorInput switches the server instruction from lines typed by the
// operator. Unknown lines are logged and ignored.
func operatorInput(ctx context.Context, in io.Reader, srv *syncserver.Server) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.ToLower(strings.TrimSpace(sc.Text()))
		if line == "" {
			continue
		}
		if err := srv.SetInstruction(syncclient.Response(line)); err != nil {
			slog.Warn("ignored operator input", "input", line, "error", err)
		}
	}
}
