package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"entitysync/internal/core"
	"entitysync/pkg/domain"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <kind> <id> <avatar|cover> <image>",
	Short: "Upload an avatar or cover image",
	Long: `Request an upload policy, push every image variant to the URLs it
lists and patch the entity with the resulting fields. Requires a server
whose blob store presigns uploads (ENTITYSYNC_BLOB_DRIVER=s3).

Examples:
  entitysync -u 1 upload team 7 avatar logo.png
  entitysync -u 1 upload user 1 avatar me.jpg`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := parseRef(args[0], args[1])
		if err != nil {
			return err
		}
		actx, err := uploadContext(ref, domain.AssetPurpose(args[2]))
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[3])
		if err != nil {
			return err
		}
		b := domain.Blob{ContentType: http.DetectContentType(data), Data: data}

		ctx := cmd.Context()
		if _, err := session.Loader().Load(ctx, ref); err != nil {
			return err
		}
		view := session.OpenView(stderrNotifier{})
		defer view.Close()
		update, err := session.Assets(view).Upload(ctx, b, actx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(update)
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}

func uploadContext(ref domain.EntityRef, purpose domain.AssetPurpose) (domain.AssetContext, error) {
	actx, ok := core.AssetContextFor(ref, purpose)
	if !ok {
		return domain.AssetContext{}, fmt.Errorf("%s entities do not take a %s image", ref.Kind, purpose)
	}
	return actx, nil
}
