package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"upcheck/internal/integrity"
)

// verifyReport is the printable outcome of a signature check.
type verifyReport struct {
	integrity.Result `yaml:",inline"`
	Official         bool   `json:"official" yaml:"official" toml:"official"`
	BuildCommit      string `json:"build_commit,omitempty" yaml:"build_commit,omitempty" toml:"build_commit,omitempty"`
	BuildChannel     string `json:"build_channel,omitempty" yaml:"build_channel,omitempty" toml:"build_channel,omitempty"`
}

func (r verifyReport) String() string {
	var b strings.Builder
	status := okStyle.Render("verified")
	if !r.Verified {
		status = errorStyle.Render("not verified")
	}
	b.WriteString(titleStyle.Render("Signature"))
	b.WriteString(" ")
	b.WriteString(status)
	b.WriteString("\n")
	if r.Binary != "" {
		b.WriteString(labelStyle.Render("Binary") + r.Binary + "\n")
	}
	if r.Digest != "" {
		b.WriteString(labelStyle.Render("Digest") + r.Digest + "\n")
	}
	if r.Reason != "" {
		b.WriteString(labelStyle.Render("Reason") + hintStyle.Render(r.Reason) + "\n")
	}
	official := "no"
	if r.Official {
		official = "yes"
	}
	b.WriteString(labelStyle.Render("Official") + official)
	return b.String()
}

func newVerifyCmd() *cobra.Command {
	var file, keyFile string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the signature of the running binary or a downloaded file",
		Long: `Check "<binary>.sig" against the release public key. Without --file the
running executable is verified.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var key []byte
			if keyFile != "" {
				data, err := os.ReadFile(keyFile) //nolint:gosec // G304: path is a user argument
				if err != nil {
					return fmt.Errorf("read public key: %w", err)
				}
				key = data
			}

			if file != "" {
				return verifyFile(cmd, file, key)
			}

			v := newVerifier(key)
			report := verifyReport{
				Result:       v.Result(),
				Official:     v.IsOfficial(),
				BuildCommit:  BuildCommit,
				BuildChannel: BuildChannel,
			}
			return outputWriter(cmd.OutOrStdout()).Write(report)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Verify this file instead of the running binary")
	cmd.Flags().StringVar(&keyFile, "public-key", "", "PEM encoded Ed25519 key to verify with")
	return cmd
}

func verifyFile(cmd *cobra.Command, path string, key []byte) error {
	if key == nil {
		key = integrity.ReleasePublicKey()
	}
	d, verr := integrity.VerifyFile(path, key)
	report := verifyReport{Result: integrity.Result{Binary: path, Verified: verr == nil}}
	if verr != nil {
		report.Reason = verr.Error()
	} else {
		report.Digest = d.String()
	}

	if err := outputWriter(cmd.OutOrStdout()).Write(report); err != nil {
		return err
	}
	if verr != nil {
		return fmt.Errorf("%s: signature verification failed", path)
	}
	return nil
}
