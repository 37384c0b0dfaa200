package ndjson

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Seq  int    `json:"seq"`
	Text string `json:"text"`
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEncoderDecoderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, discardLogger())

	require.NoError(t, enc.Encode(record{Seq: 1, Text: "delay ORD-001 by 2h"}))
	require.NoError(t, enc.Encode(record{Seq: 2, Text: "swap ORD-001 and ORD-002"}))

	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	dec := NewDecoder(&buf, discardLogger())
	var got []record
	for {
		var r record
		err := dec.Decode(&r)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, r)
	}

	require.Len(t, got, 2)
	assert.Equal(t, "swap ORD-001 and ORD-002", got[1].Text)
	assert.Equal(t, 2, dec.Line())
}

func TestDecoderSkipsBlankLines(t *testing.T) {
	input := "\n{\"seq\":1}\n\n\n{\"seq\":2}\n"
	dec := NewDecoder(strings.NewReader(input), discardLogger())

	var r record
	require.NoError(t, dec.Decode(&r))
	assert.Equal(t, 1, r.Seq)
	require.NoError(t, dec.Decode(&r))
	assert.Equal(t, 2, r.Seq)
	assert.Equal(t, 5, dec.Line())
	assert.Equal(t, io.EOF, dec.Decode(&r))
}

func TestDecoderReportsMalformedLine(t *testing.T) {
	dec := NewDecoder(strings.NewReader("{\"seq\":1}\n{\"seq\":"), discardLogger())

	var r record
	require.NoError(t, dec.Decode(&r))

	err := dec.Decode(&r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestEncoderRejectsOversizedRecord(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, discardLogger())

	err := enc.Encode(record{Text: strings.Repeat("x", MaxRecordSize)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit")
	assert.Zero(t, buf.Len())
}
