package csvfeed

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

const sample = `date,open,high,low,close,volume
1690000120,12,13,11,12.5,100
1690000000,10,11,9,10.5,80
1690000060,11,12,10,11.5,90
1690000060,99,99,99,99,99
`

func TestLoad_SortsDedupsAndSkipsHeader(t *testing.T) {
	got, err := Load(strings.NewReader(sample), Options{Symbol: "SOLUSDT"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d candles, want 3", len(got))
	}
	wantClose := []float64{10.5, 11.5, 12.5}
	for i, c := range got {
		if c.Close != wantClose[i] {
			t.Errorf("candle %d close = %v, want %v", i, c.Close, wantClose[i])
		}
		if c.Symbol != "SOLUSDT" {
			t.Errorf("candle %d symbol = %q", i, c.Symbol)
		}
	}
	if !got[0].TS.Equal(time.Unix(1690000000, 0)) || got[0].Volume != 80 {
		t.Errorf("first candle = %+v", got[0])
	}
}

func TestLoad_MillisecondsAndOptionalVolume(t *testing.T) {
	got, err := Load(strings.NewReader("1690000000000,1,2,0.5,1.5\n"), Options{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || !got[0].TS.Equal(time.Unix(1690000000, 0)) || got[0].Volume != 0 {
		t.Errorf("got %+v", got)
	}
}

func TestLoad_Window(t *testing.T) {
	got, _ := Load(strings.NewReader(sample), Options{
		Start: time.Unix(1690000060, 0),
		End:   time.Unix(1690000120, 0),
	})
	if len(got) != 1 || got[0].Close != 11.5 {
		t.Errorf("got %+v", got)
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"short row":   "1690000000,1,2\n",
		"bad number":  "1690000000,1,2,x,1\n",
		"bad in body": "1690000000,1,2,1,1\nfoo,1,2,1,1\n",
	}
	for name, in := range cases {
		if _, err := Load(strings.NewReader(in), Options{}); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestWrite_LoadsBack(t *testing.T) {
	in, _ := Load(strings.NewReader(sample), Options{})
	var buf bytes.Buffer
	if err := Write(&buf, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "date,open,high,low,close,volume\n1690000000,10,11,9,10.5,80\n") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
	out, err := Load(&buf, Options{})
	if err != nil || len(out) != len(in) {
		t.Fatalf("reload = %d, %v", len(out), err)
	}
}

func TestSource_Window(t *testing.T) {
	in, _ := Load(strings.NewReader(sample), Options{})
	src := NewSource(in)
	got, _ := src.ReadCandles("any", time.Unix(1690000060, 0), time.Time{})
	if len(got) != 2 {
		t.Errorf("got %d candles, want 2", len(got))
	}
}
