package terminal

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/osa030/slidecast/internal/app/playback"
)

// Key is a presenter command read from the keyboard.
type Key int

const (
	KeyNone   Key = iota
	KeySpace      // Pause in Auto, next in Manual
	KeyNext       // Right arrow
	KeyPrev       // Left arrow
	KeyFaster     // "." or ">"
	KeySlower     // "," or "<"
	KeyQuit       // "q" or Ctrl-C
)

// String returns the string representation of the key.
func (k Key) String() string {
	switch k {
	case KeySpace:
		return "space"
	case KeyNext:
		return "next"
	case KeyPrev:
		return "prev"
	case KeyFaster:
		return "faster"
	case KeySlower:
		return "slower"
	case KeyQuit:
		return "quit"
	default:
		return "none"
	}
}

// ParseKeys decodes raw terminal input into keys. Unknown bytes and
// escape sequences are skipped.
func ParseKeys(b []byte) []Key {
	var keys []Key
	for i := 0; i < len(b); i++ {
		switch c := b[i]; c {
		case ' ':
			keys = append(keys, KeySpace)
		case '.', '>':
			keys = append(keys, KeyFaster)
		case ',', '<':
			keys = append(keys, KeySlower)
		case 'q', 'Q', 0x03:
			keys = append(keys, KeyQuit)
		case 0x1b:
			// CSI: ESC [ <params> <final>
			if i+2 < len(b) && b[i+1] == '[' {
				j := i + 2
				for j < len(b) && (b[j] < 0x40 || b[j] > 0x7e) {
					j++
				}
				if j < len(b) {
					switch b[j] {
					case 'C':
						keys = append(keys, KeyNext)
					case 'D':
						keys = append(keys, KeyPrev)
					}
				}
				i = j
			} else if i+2 < len(b) && b[i+1] == 'O' {
				// SS3 arrows in application cursor mode
				switch b[i+2] {
				case 'C':
					keys = append(keys, KeyNext)
				case 'D':
					keys = append(keys, KeyPrev)
				}
				i += 2
			}
		}
	}
	return keys
}

// Player is the part of the playback controller driven by keys.
type Player interface {
	Next() error
	Prev() error
	TogglePause() error
	AdjustSpeed(delta float64) (float64, error)
	State() playback.PlaybackState
}

// Dispatch applies key to p. It reports whether the presenter asked to
// quit. Invalid navigation errors are returned for display.
func Dispatch(p Player, key Key) (quit bool, err error) {
	switch key {
	case KeyQuit:
		return true, nil
	case KeySpace:
		if p.State().Mode == playback.ModeAuto.String() {
			return false, p.TogglePause()
		}
		return false, p.Next()
	case KeyNext:
		return false, p.Next()
	case KeyPrev:
		return false, p.Prev()
	case KeyFaster:
		_, err := p.AdjustSpeed(playback.SpeedStep)
		return false, err
	case KeySlower:
		_, err := p.AdjustSpeed(-playback.SpeedStep)
		return false, err
	default:
		return false, nil
	}
}

// MakeRaw puts f into raw mode when it is a terminal. The returned
// function restores the previous mode; raw reports whether raw mode is on.
func MakeRaw(f *os.File) (restore func(), raw bool, err error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, false, nil
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to enable raw mode")
	}
	return func() {
		if err := term.Restore(fd, old); err != nil {
			zlog.Warn().Err(err).Msg("terminal: failed to restore mode")
		}
	}, true, nil
}

// ReadKeys reads r until EOF or ctx is done, delivering keys on the
// returned channel. The channel is closed when reading stops.
func ReadKeys(ctx context.Context, r io.Reader) <-chan Key {
	ch := make(chan Key, 16)
	go func() {
		defer close(ch)
		br := bufio.NewReader(r)
		buf := make([]byte, 64)
		for {
			n, err := br.Read(buf)
			for _, k := range ParseKeys(buf[:n]) {
				select {
				case ch <- k:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					zlog.Debug().Err(err).Msg("terminal: input closed")
				}
				return
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	return ch
}
