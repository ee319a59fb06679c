package imap

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
)

const refPrefix = "imap:"

// messageID prefers the RFC 5322 Message-Id, which survives mailbox
// reorganisation. Without one the UID is qualified by UIDVALIDITY.
func messageID(env *imap.Envelope, uidValidity, uid uint32) string {
	if env != nil {
		if id := strings.Trim(strings.TrimSpace(env.MessageId), "<>"); id != "" {
			return id
		}
	}
	return fmt.Sprintf("%s%d:%d", refPrefix, uidValidity, uid)
}

func formatSender(from []*imap.Address) string {
	if len(from) == 0 || from[0] == nil {
		return ""
	}
	a := from[0]
	addr := a.Address()
	if a.PersonalName == "" {
		return addr
	}
	return (&mail.Address{Name: a.PersonalName, Address: addr}).String()
}

// part is a leaf of a body structure together with its section path.
type part struct {
	Path     []int
	Encoding string
	Filename string
	text     bool
}

// section addresses the part with BODY.PEEK. A single-part message has no
// path; its content is the TEXT section.
func (p part) section() *imap.BodySectionName {
	if len(p.Path) == 0 {
		return &imap.BodySectionName{BodyPartName: imap.BodyPartName{Specifier: imap.TextSpecifier}, Peek: true}
	}
	return &imap.BodySectionName{BodyPartName: imap.BodyPartName{Path: p.Path}, Peek: true}
}

func leaves(bs *imap.BodyStructure) []part {
	if bs == nil {
		return nil
	}
	if len(bs.Parts) == 0 {
		return []part{leaf(bs, nil)}
	}
	var out []part
	var walk func(bs *imap.BodyStructure, path []int)
	walk = func(bs *imap.BodyStructure, path []int) {
		for i, child := range bs.Parts {
			childPath := append(append([]int(nil), path...), i+1)
			if len(child.Parts) > 0 {
				walk(child, childPath)
				continue
			}
			out = append(out, leaf(child, childPath))
		}
	}
	walk(bs, nil)
	return out
}

func leaf(bs *imap.BodyStructure, path []int) part {
	name := bs.DispositionParams["filename"]
	if name == "" {
		name = bs.Params["name"]
	}
	if decoded, err := new(mime.WordDecoder).DecodeHeader(name); err == nil {
		name = decoded
	}
	return part{
		Path:     path,
		Encoding: bs.Encoding,
		Filename: sanitizeFilename(name),
		text: strings.EqualFold(bs.MIMEType, "text") && strings.EqualFold(bs.MIMESubType, "plain") &&
			!strings.EqualFold(bs.Disposition, "attachment") && name == "",
	}
}

// findText returns the first inline text/plain part.
func findText(bs *imap.BodyStructure) (part, bool) {
	for _, p := range leaves(bs) {
		if p.text {
			return p, true
		}
	}
	return part{}, false
}

// findAttachments returns every named part of a multipart message.
func findAttachments(bs *imap.BodyStructure) []part {
	var out []part
	for _, p := range leaves(bs) {
		if p.Filename != "" && len(p.Path) > 0 {
			out = append(out, p)
		}
	}
	return out
}

// decodePart undoes the Content-Transfer-Encoding of a fetched section.
func decodePart(data []byte, encoding string) ([]byte, error) {
	switch strings.ToLower(encoding) {
	case "base64":
		return io.ReadAll(base64.NewDecoder(base64.StdEncoding, bytes.NewReader(data)))
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(bytes.NewReader(data)))
	default:
		return data, nil
	}
}

func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	return strings.ReplaceAll(name, "..", "_")
}

// AttachmentRef identifies one part of one message:
// imap:<uidvalidity>:<uid>/<section path>/<filename>.
type AttachmentRef struct {
	UIDValidity uint32
	UID         uint32
	Path        []int
	Filename    string
}

func (r AttachmentRef) String() string {
	path := make([]string, len(r.Path))
	for i, n := range r.Path {
		path[i] = strconv.Itoa(n)
	}
	return fmt.Sprintf("%s%d:%d/%s/%s", refPrefix, r.UIDValidity, r.UID, strings.Join(path, "."), r.Filename)
}

// ParseAttachmentRef parses a ref produced by AttachmentRef.String.
func ParseAttachmentRef(ref string) (AttachmentRef, error) {
	rest, ok := strings.CutPrefix(ref, refPrefix)
	if !ok {
		return AttachmentRef{}, fmt.Errorf("not an imap attachment ref: %q", ref)
	}
	fields := strings.SplitN(rest, "/", 3)
	if len(fields) != 3 {
		return AttachmentRef{}, fmt.Errorf("malformed imap attachment ref: %q", ref)
	}

	validity, uid, ok := strings.Cut(fields[0], ":")
	if !ok {
		return AttachmentRef{}, fmt.Errorf("malformed imap attachment ref: %q", ref)
	}
	v, err := strconv.ParseUint(validity, 10, 32)
	if err != nil {
		return AttachmentRef{}, fmt.Errorf("invalid uidvalidity in %q: %w", ref, err)
	}
	u, err := strconv.ParseUint(uid, 10, 32)
	if err != nil {
		return AttachmentRef{}, fmt.Errorf("invalid uid in %q: %w", ref, err)
	}

	if fields[1] == "" {
		return AttachmentRef{}, fmt.Errorf("missing section path in %q", ref)
	}
	var path []int
	for _, s := range strings.Split(fields[1], ".") {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return AttachmentRef{}, fmt.Errorf("invalid section path in %q", ref)
		}
		path = append(path, n)
	}

	return AttachmentRef{UIDValidity: uint32(v), UID: uint32(u), Path: path, Filename: fields[2]}, nil
}

// partAt returns the leaf at path.
func partAt(bs *imap.BodyStructure, path []int) (part, bool) {
	for _, p := range leaves(bs) {
		if equalPath(p.Path, path) {
			return p, true
		}
	}
	return part{}, false
}

func equalPath(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
