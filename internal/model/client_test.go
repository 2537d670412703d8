package model

import (
	"testing"

	"google.golang.org/genai"

	"github.com/alphaq-labs/helixr/internal/domain"
)

func TestToContent(t *testing.T) {
	t.Run("user text turn", func(t *testing.T) {
		c := toContent(domain.Turn{Role: domain.RoleUser, Text: "open the dashboard"})
		if c.Role != string(genai.RoleUser) {
			t.Errorf("role = %q, want %q", c.Role, genai.RoleUser)
		}
		if len(c.Parts) != 1 || c.Parts[0].Text != "open the dashboard" {
			t.Errorf("unexpected parts: %+v", c.Parts)
		}
	})

	t.Run("model turn keeps model role", func(t *testing.T) {
		c := toContent(domain.Turn{Role: domain.RoleModel, Text: "done"})
		if c.Role != string(genai.RoleModel) {
			t.Errorf("role = %q, want %q", c.Role, genai.RoleModel)
		}
	})

	t.Run("audio turn carries inline data", func(t *testing.T) {
		audio := []byte{0x52, 0x49, 0x46, 0x46}
		c := toContent(domain.Turn{Role: domain.RoleUser, Audio: audio, MimeType: "audio/wav"})
		if c.Role != string(genai.RoleUser) {
			t.Errorf("role = %q, want %q", c.Role, genai.RoleUser)
		}
		if len(c.Parts) != 2 {
			t.Fatalf("parts = %d, want lead-in text plus inline data", len(c.Parts))
		}
		blob := c.Parts[1].InlineData
		if blob == nil {
			t.Fatal("second part has no inline data")
		}
		if blob.MIMEType != "audio/wav" || len(blob.Data) != len(audio) {
			t.Errorf("inline data = (%q, %d bytes), want (audio/wav, %d bytes)",
				blob.MIMEType, len(blob.Data), len(audio))
		}
	})
}
