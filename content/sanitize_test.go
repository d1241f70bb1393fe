package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain text", in: "In the beginning God created the heaven and the earth.", want: "In the beginning God created the heaven and the earth."},
		{name: "strong numbers", in: "In the beginning<S>7225</S> God<S>430, 853</S> created", want: "In the beginning God created"},
		{name: "paragraph tags", in: "<p class=\"x\">And God said</p>", want: "And God said"},
		{name: "page break", in: "first <pb/>second", want: "first second"},
		{name: "italics keep text", in: "the <i>waters</i> under", want: "the waters under"},
		{name: "footnotes dropped", in: "light<f>[1] note text</f> was", want: "light was"},
		{name: "bracket references", in: "and it was so [12a] indeed [3†]", want: "and it was so indeed"},
		{name: "stray symbols", in: "day #one @ noon", want: "day one noon"},
		{name: "whitespace collapsed", in: "  a \n\t b  ", want: "a b"},
		{name: "no-break space kept as space", in: "and\u00a0God", want: "and God"},
		{name: "unicode spaces collapsed", in: "a\u00a0 \u2003b\u00a0", want: "a b"},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}
