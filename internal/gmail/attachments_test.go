package gmail

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{name: "normal filename", filename: "document.pdf", want: "document.pdf"},
		{name: "forward slash", filename: "path/to/document.pdf", want: "path_to_document.pdf"},
		{name: "backslash", filename: "path\\to\\document.pdf", want: "path_to_document.pdf"},
		{name: "parent directory", filename: "../../../etc/passwd", want: "______etc_passwd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.filename))
		})
	}
}

func TestParseAttachmentRef(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		want    AttachmentRef
		wantErr bool
	}{
		{
			name: "valid",
			ref:  "gmail:m1/att-1/rfq.pdf",
			want: AttachmentRef{MessageID: "m1", AttachmentID: "att-1", Filename: "rfq.pdf"},
		},
		{
			name: "empty filename",
			ref:  "gmail:m1/att-1/",
			want: AttachmentRef{MessageID: "m1", AttachmentID: "att-1"},
		},
		{name: "wrong provider", ref: "imap:1:2", wantErr: true},
		{name: "missing attachment", ref: "gmail:m1", wantErr: true},
		{name: "empty message", ref: "gmail:/att/x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAttachmentRef(tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ref, got.String())
		})
	}
}

func TestDecodeData(t *testing.T) {
	raw := []byte("hello?>world")

	for name, enc := range map[string]*base64.Encoding{
		"url":     base64.URLEncoding,
		"raw url": base64.RawURLEncoding,
		"std":     base64.StdEncoding,
	} {
		t.Run(name, func(t *testing.T) {
			got, err := decodeData(enc.EncodeToString(raw))
			require.NoError(t, err)
			assert.Equal(t, raw, got)
		})
	}

	_, err := decodeData("!!!")
	assert.Error(t, err)
}

func TestEncodeRFC2047(t *testing.T) {
	assert.Equal(t, "Plain subject", encodeRFC2047("Plain subject"))
	assert.Equal(t, "=?UTF-8?b?R3LDtsOfZQ==?=", encodeRFC2047("Größe"))
}
