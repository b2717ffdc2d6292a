package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
)

func TestInit_DoesNotPanic(t *testing.T) {
	defer Init(false, false)

	for _, tc := range []struct{ debug, human bool }{
		{false, false},
		{true, false},
		{false, true},
		{true, true},
	} {
		Init(tc.debug, tc.human)
		L().Info().Msg("init check")
		L().Debug().Msg("init check debug")
	}
}

func TestNew_JSONLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, false, false)

	l.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected no output at debug with info level, got: %s", buf.String())
	}

	l.Info().Msg("shown")
	if !bytes.Contains(buf.Bytes(), []byte(`"message":"shown"`)) {
		t.Errorf("expected info message, got: %s", buf.String())
	}
}

func TestWithPhase(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer Init(false, false)

	log := WithPhase("ranges")
	log.Info().Msg("test message")

	if !bytes.Contains(buf.Bytes(), []byte(`"phase":"ranges"`)) {
		t.Errorf("expected phase field in output, got: %s", buf.String())
	}
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf).With().Str("custom", "field").Logger())
	defer Init(false, false)

	L().Info().Msg("test")

	if !bytes.Contains(buf.Bytes(), []byte(`"custom":"field"`)) {
		t.Errorf("expected custom field in output, got: %s", buf.String())
	}
}
