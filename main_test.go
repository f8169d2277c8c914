package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecideOne(t *testing.T) {
	engine := newTestEngine(t, Rules{IncludeURLs: []string{"facebook.com"}}, &fakeSource{}, &fakeModel{err: errors.New("down")})

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	require.NoError(t, decideOne(context.Background(), cmd, engine, []string{"https://www.facebook.com"}))
	assert.Equal(t, "https://www.facebook.com\t0\tNot work-related\tprecedence/include\n", out.String())

	assert.ErrorContains(t, decideOne(context.Background(), cmd, engine, nil), "URL required")
}

func TestDecideOneUsesRawURL(t *testing.T) {
	source := &fakeSource{}
	engine := newTestEngine(t, Rules{}, source, &fakeModel{response: "```json\n{\"confidence\": 99}\n```"})

	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})

	require.NoError(t, decideOne(context.Background(), cmd, engine, []string{"https://payer.com", "https://payer.com/login"}))
	assert.Equal(t, []string{"https://payer.com/login"}, source.calls)
}

func TestNewRunLoggerHeadless(t *testing.T) {
	logger, err := newRunLogger(LogSettings{Level: "info", OutputPaths: []string{"/nonexistent/dir/labeler.log"}}, false)
	require.NoError(t, err, "headless runs log to stderr only")
	assert.NotNil(t, logger)
}
