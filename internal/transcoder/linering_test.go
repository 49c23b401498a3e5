package transcoder

import (
	"bufio"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineRing(t *testing.T) {
	r := NewLineRing(3)

	_, _ = fmt.Fprintf(r, "line1\n")
	_, _ = fmt.Fprintf(r, "line2\n")
	assert.Equal(t, []string{"line1", "line2"}, r.LastN(10))

	_, _ = fmt.Fprintf(r, "line3\n")
	assert.Equal(t, []string{"line1", "line2", "line3"}, r.LastN(10))

	_, _ = fmt.Fprintf(r, "line4\n")
	assert.Equal(t, []string{"line2", "line3", "line4"}, r.LastN(10))
	assert.Equal(t, []string{"line3", "line4"}, r.LastN(2))
	assert.Nil(t, r.LastN(0))
}

func TestLineRing_Partial(t *testing.T) {
	r := NewLineRing(5)
	_, _ = r.Write([]byte("foo\r\nbar\n\n"))

	assert.Equal(t, []string{"foo", "bar"}, r.LastN(10))
}

func TestScanLines(t *testing.T) {
	in := "Input #0, flv\nframe=1 bitrate=1.0kbits/s\rframe=2 bitrate=2.0kbits/s\r\npartial"
	sc := bufio.NewScanner(strings.NewReader(in))
	sc.Split(scanLines)

	var got []string
	for sc.Scan() {
		if sc.Text() != "" {
			got = append(got, sc.Text())
		}
	}
	assert.NoError(t, sc.Err())
	assert.Equal(t, []string{
		"Input #0, flv",
		"frame=1 bitrate=1.0kbits/s",
		"frame=2 bitrate=2.0kbits/s",
		"partial",
	}, got)
}
