package imap

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tenderStructure() *imap.BodyStructure {
	return &imap.BodyStructure{
		MIMEType:    "multipart",
		MIMESubType: "mixed",
		Parts: []*imap.BodyStructure{
			{
				MIMEType:    "multipart",
				MIMESubType: "alternative",
				Parts: []*imap.BodyStructure{
					{MIMEType: "text", MIMESubType: "plain", Encoding: "quoted-printable"},
					{MIMEType: "text", MIMESubType: "html", Encoding: "7bit"},
				},
			},
			{
				MIMEType:          "application",
				MIMESubType:       "pdf",
				Encoding:          "base64",
				Disposition:       "attachment",
				DispositionParams: map[string]string{"filename": "KOC RFQ.pdf"},
			},
			{
				MIMEType:    "text",
				MIMESubType: "plain",
				Encoding:    "base64",
				Params:      map[string]string{"name": "../notes.txt"},
			},
		},
	}
}

func TestMessageID(t *testing.T) {
	tests := []struct {
		name string
		env  *imap.Envelope
		want string
	}{
		{name: "message id", env: &imap.Envelope{MessageId: "<abc@yahoo.example>"}, want: "abc@yahoo.example"},
		{name: "empty message id", env: &imap.Envelope{MessageId: "  "}, want: "imap:77:12"},
		{name: "no envelope", env: nil, want: "imap:77:12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, messageID(tt.env, 77, 12))
		})
	}
}

func TestFormatSender(t *testing.T) {
	assert.Equal(t, "", formatSender(nil))
	assert.Equal(t, "buyer@hospital.example", formatSender([]*imap.Address{
		{MailboxName: "buyer", HostName: "hospital.example"},
	}))
	assert.Equal(t, `"Dr. Amal" <amal@clinic.example>`, formatSender([]*imap.Address{
		{PersonalName: "Dr. Amal", MailboxName: "amal", HostName: "clinic.example"},
	}))
}

func TestFindText(t *testing.T) {
	p, ok := findText(tenderStructure())
	require.True(t, ok)
	assert.Equal(t, []int{1, 1}, p.Path)
	assert.Equal(t, "quoted-printable", p.Encoding)

	single := &imap.BodyStructure{MIMEType: "text", MIMESubType: "plain", Encoding: "7bit"}
	p, ok = findText(single)
	require.True(t, ok)
	assert.Empty(t, p.Path)
	assert.Equal(t, imap.PartSpecifier(imap.TextSpecifier), p.section().Specifier)
	assert.True(t, p.section().Peek)

	_, ok = findText(&imap.BodyStructure{MIMEType: "text", MIMESubType: "html"})
	assert.False(t, ok)
}

func TestFindAttachments(t *testing.T) {
	atts := findAttachments(tenderStructure())
	require.Len(t, atts, 2)

	assert.Equal(t, []int{2}, atts[0].Path)
	assert.Equal(t, "KOC RFQ.pdf", atts[0].Filename)
	assert.Equal(t, "base64", atts[0].Encoding)

	assert.Equal(t, []int{3}, atts[1].Path)
	assert.Equal(t, "__notes.txt", atts[1].Filename)

	p, ok := partAt(tenderStructure(), []int{2})
	require.True(t, ok)
	assert.Equal(t, "KOC RFQ.pdf", p.Filename)
	_, ok = partAt(tenderStructure(), []int{9})
	assert.False(t, ok)
}

func TestDecodePart(t *testing.T) {
	text := "Größe und Menge"

	got, err := decodePart([]byte("Gr=C3=B6=C3=9Fe und =\r\nMenge"), "QUOTED-PRINTABLE")
	require.NoError(t, err)
	assert.Equal(t, text, string(got))

	encoded := base64.StdEncoding.EncodeToString([]byte(text))
	got, err = decodePart([]byte(encoded[:8]+"\r\n"+encoded[8:]), "base64")
	require.NoError(t, err)
	assert.Equal(t, text, string(got))

	got, err = decodePart([]byte(text), "8bit")
	require.NoError(t, err)
	assert.Equal(t, text, string(got))
}

func TestAttachmentRef(t *testing.T) {
	ref := AttachmentRef{UIDValidity: 77, UID: 12, Path: []int{2, 1}, Filename: "KOC RFQ.pdf"}
	assert.Equal(t, "imap:77:12/2.1/KOC RFQ.pdf", ref.String())

	parsed, err := ParseAttachmentRef(ref.String())
	require.NoError(t, err)
	assert.Equal(t, ref, parsed)

	for _, bad := range []string{
		"gmail:m/a/f",
		"imap:77/2/f",
		"imap:x:12/2/f",
		"imap:77:12//f",
		"imap:77:12/0/f",
		"imap:77:12/2",
	} {
		_, err := ParseAttachmentRef(bad)
		assert.Error(t, err, bad)
	}
}

func TestSearchCriteria(t *testing.T) {
	since := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	c := searchCriteria(since)
	assert.Equal(t, []string{imap.SeenFlag}, c.WithoutFlags)
	assert.Equal(t, since, c.Since)

	assert.True(t, searchCriteria(time.Time{}).Since.IsZero())
}

func TestConfig(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.NoError(t, Config{Username: "u@yahoo.example", Password: "app-pass"}.Validate())

	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultAddr, cfg.Addr)
	assert.Equal(t, DefaultMailbox, cfg.Mailbox)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)

	_, err := New(Config{Username: "u", Password: "p", Addr: "no-port"}, nil, nil)
	assert.Error(t, err)

	s, err := New(Config{Username: "u", Password: "p"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultAddr, s.cfg.Addr)
}
