package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/soyeahso/captionbot/internal/caption"
	"github.com/soyeahso/captionbot/internal/dispatch"
	"github.com/soyeahso/captionbot/internal/domain"
	"github.com/soyeahso/captionbot/internal/resolver"
)

func newCaptionCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "caption [text or image URL]",
		Short: "Caption an image URL, a message text or a local file",
		Long: "Runs the same pipeline as an inbound chat message and prints the reply. " +
			"With --file the image bytes are streamed to the captioning service.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" && len(args) == 0 {
				return errors.New("need message text or --file")
			}

			cfg, err := loadValidConfig(nil)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*cfg.Caption.Timeout())
			defer cancel()

			captioner, err := caption.New(ctx, cfg.Caption, log)
			if err != nil {
				return err
			}

			if file != "" {
				text, err := captionFile(ctx, captioner, file)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			}

			d := dispatch.New(captioner, log, dispatch.WithTimeout(cfg.Caption.Timeout()))
			text, err := d.Describe(ctx, cliMessage(strings.Join(args, " "), nil), nil)
			if err != nil {
				log.Debug().Err(err).Msg("describe failed")
			}
			fmt.Fprintln(cmd.OutOrStdout(), dispatch.ReplyFor(text, err))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "local image file to caption")
	return cmd
}

func captionFile(ctx context.Context, captioner caption.Client, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return captioner.CaptionStream(ctx, f, contentType)
}

func newResolveCmd() *cobra.Command {
	var attachments []string

	cmd := &cobra.Command{
		Use:   "resolve [text]",
		Short: "Show which image a message would be captioned from",
		Long: "Resolves the image reference of a message without contacting any service. " +
			"Attachments are given as contentType=url.",
		RunE: func(cmd *cobra.Command, args []string) error {
			atts, err := parseAttachments(attachments)
			if err != nil {
				return err
			}

			ref, err := resolver.Resolve(cliMessage(strings.Join(args, " "), atts))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ref)
		},
	}

	cmd.Flags().StringArrayVarP(&attachments, "attachment", "a", nil, "attachment as contentType=url (repeatable)")
	return cmd
}

func parseAttachments(specs []string) ([]domain.Attachment, error) {
	atts := make([]domain.Attachment, 0, len(specs))
	for _, spec := range specs {
		contentType, url, ok := strings.Cut(spec, "=")
		if !ok || url == "" {
			return nil, fmt.Errorf("attachment %q: want contentType=url", spec)
		}
		atts = append(atts, domain.Attachment{ContentType: contentType, ContentURL: url})
	}
	return atts, nil
}

func cliMessage(text string, atts []domain.Attachment) domain.InboundMessage {
	return domain.InboundMessage{
		ID:          uuid.NewString(),
		Type:        domain.ActivityMessage,
		ChannelID:   "cli",
		From:        "user",
		ChatID:      "cli",
		ChatType:    domain.ChatTypeDM,
		Body:        text,
		Attachments: atts,
		Timestamp:   time.Now(),
	}
}
