package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{` ____                    ____                               _     `, "#818cf8"},
	{`|  _ \  ___  ___ _ __   |  _ \ ___  ___  ___  __ _ _ __ ___| |__  `, "#a78bfa"},
	{`| | | |/ _ \/ _ \ '_ \  | |_) / _ \/ __|/ _ \/ _' | '__/ __| '_ \ `, "#c084fc"},
	{`| |_| |  __/  __/ |_) | |  _ <  __/\__ \  __/ (_| | | | (__| | | |`, "#e879f9"},
	{`|____/ \___|\___| .__/  |_| \_\___||___/\___|\__,_|_|  \___|_| |_|`, "#f472b6"},
	{`                |_|                                                `, "#fb7185"},
}

// PrintBanner writes the colored banner to w. Colors degrade with the terminal profile.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w)
}

// Styled colors text for w, or returns it unchanged when w is not a color terminal.
func Styled(w io.Writer, text, color string) string {
	out := termenv.NewOutput(w)
	return out.String(text).Foreground(out.Color(color)).String()
}
