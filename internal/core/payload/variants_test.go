package payload

import (
	"strings"
	"testing"

	"github.com/cyllective/egress0r/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDNSPayload_Defaults(t *testing.T) {
	p, err := NewDNSPayload("data", "dns.txt", "exfil.example.com.", "1.1.1.1", "", 0, 0)
	require.NoError(t, err)

	assert.Equal(t, DefaultDNSChunkSize, p.ChunkSize)
	assert.Equal(t, DefaultDNSMaxChunks, p.MaxChunks)
	assert.Equal(t, "A", p.RecordType)
	assert.Equal(t, "exfil.example.com", p.Domain)
	assert.Equal(t, ModeBinary, p.Mode)
	assert.Equal(t, "646e732e747874", p.HexFilename())
	assert.Equal(t, 900, p.ChunksTotalLength())
}

func TestNewDNSPayload_RecordType(t *testing.T) {
	p, err := NewDNSPayload("data", "dns.txt", "example.com", "", "txt", 10, 10)
	require.NoError(t, err)
	assert.Equal(t, "TXT", p.RecordType)

	_, err = NewDNSPayload("data", "dns.txt", "example.com", "", "SRV", 10, 10)
	assert.ErrorIs(t, err, model.ErrInvalidConfig)
}

func TestNewDNSPayload_LabelLimits(t *testing.T) {
	_, err := NewDNSPayload("data", "dns.txt", "example.com", "", "A", 31, 1)
	assert.NoError(t, err)

	_, err = NewDNSPayload("data", "dns.txt", "example.com", "", "A", 32, 1)
	assert.ErrorIs(t, err, model.ErrInvalidConfig)

	long := strings.Repeat("a", 63) + "." + strings.Repeat("b", 63) + "." + strings.Repeat("c", 63) + "." + strings.Repeat("d", 40)
	_, err = NewDNSPayload("data", "dns.txt", long, "", "A", 30, 1)
	assert.ErrorIs(t, err, model.ErrInvalidConfig)

	_, err = NewDNSPayload("data", strings.Repeat("f", 32), "example.com", "", "A", 30, 1)
	assert.ErrorIs(t, err, model.ErrInvalidConfig)
}

func TestNewSMTPPayload(t *testing.T) {
	p, err := NewSMTPPayload("data", "mail.txt", "", ModeText)
	require.NoError(t, err)
	assert.Equal(t, ExfilInline, p.ExfilMode)
	assert.Equal(t, ModeText, p.Mode)
	assert.False(t, p.IsAttachment())

	att, err := NewSMTPPayload("data", "mail.txt", ExfilAttachment, ModeText)
	require.NoError(t, err)
	assert.Equal(t, ModeBinary, att.Mode)
	assert.True(t, att.IsAttachment())

	_, err = NewSMTPPayload("data", "mail.txt", "embedded", ModeBinary)
	assert.ErrorIs(t, err, model.ErrInvalidConfig)
}
