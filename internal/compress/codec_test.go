package compress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/AgenticGames/miningspice/pkg/domain"
)

func sampleZoneData() []byte {
	// Voxel-ish payload: long runs with occasional structure, the shape
	// the codecs actually see.
	var b bytes.Buffer
	for i := 0; i < 200; i++ {
		b.WriteString(strings.Repeat("granite", 8))
		b.WriteByte(byte(i))
		b.WriteString(strings.Repeat("\x00", 64))
	}
	return b.Bytes()
}

func TestCodecRoundTrips(t *testing.T) {
	src := sampleZoneData()
	for _, name := range Names() {
		c, err := Lookup(name, 2)
		if err != nil {
			t.Fatalf("%s: lookup: %v", name, err)
		}
		packed, err := c.Compress(src)
		if err != nil {
			t.Fatalf("%s: compress: %v", name, err)
		}
		out, err := c.Decompress(packed)
		if err != nil {
			t.Fatalf("%s: decompress: %v", name, err)
		}
		if !bytes.Equal(out, src) {
			t.Fatalf("%s: round trip corrupted data", name)
		}
		if name != CodecNone && len(packed) >= len(src) {
			t.Errorf("%s: no compression on compressible input (%d >= %d)", name, len(packed), len(src))
		}
	}
}

func TestLookupClampsAndRejects(t *testing.T) {
	if _, err := Lookup("brotli", 1); err == nil {
		t.Fatal("unknown codec accepted")
	}
	// Out-of-range levels clamp rather than fail.
	if _, err := Lookup(CodecZstd, 99); err != nil {
		t.Fatalf("clamped zstd level: %v", err)
	}
	if _, err := Lookup(CodecGzip, -5); err != nil {
		t.Fatalf("clamped gzip level: %v", err)
	}
	// Same name and level shares one instance.
	a, _ := Lookup(CodecS2, 0)
	b, _ := Lookup(CodecS2, 0)
	if a != b {
		t.Fatal("codec instances not shared")
	}
}

func TestPolicyTiersAndOverrides(t *testing.T) {
	p := NewPolicy(nil, nil)

	if got := p.ProfileFor(0, TierHot); got.Codec != CodecNone {
		t.Fatalf("hot tier codec = %q", got.Codec)
	}
	if got := p.ProfileFor(0, TierWarm); got.Codec != CodecS2 {
		t.Fatalf("warm tier codec = %q", got.Codec)
	}
	if got := p.ProfileFor(0, TierCold); got.Codec != CodecZstd {
		t.Fatalf("cold tier codec = %q", got.Codec)
	}

	obsidian := domain.TypeID(7)
	if err := p.RegisterTypeCompression(obsidian, domain.CompressionProfile{Codec: "lz99"}); err == nil {
		t.Fatal("unknown override codec accepted")
	}
	if err := p.RegisterTypeCompression(obsidian, domain.CompressionProfile{Codec: CodecGzip, Level: 6}); err != nil {
		t.Fatalf("override: %v", err)
	}
	if got := p.ProfileFor(obsidian, TierCold); got.Codec != CodecGzip {
		t.Fatalf("override not consulted: %q", got.Codec)
	}
	// Other types keep the tier mapping.
	if got := p.ProfileFor(domain.TypeID(8), TierCold); got.Codec != CodecZstd {
		t.Fatalf("override leaked: %q", got.Codec)
	}
}

func TestPolicyInvalidTierFallsBack(t *testing.T) {
	p := NewPolicy(map[Tier]domain.CompressionProfile{
		TierCold: {Codec: "bogus"},
		TierWarm: {Codec: CodecZstd, Level: 1},
	}, nil)
	if got := p.ProfileFor(0, TierCold); got.Codec != CodecZstd {
		t.Fatalf("invalid tier profile not replaced: %q", got.Codec)
	}
	if got := p.ProfileFor(0, TierWarm); got.Codec != CodecZstd {
		t.Fatalf("valid tier profile dropped: %q", got.Codec)
	}
}

func TestPackUnpack(t *testing.T) {
	p := NewPolicy(nil, nil)
	src := sampleZoneData()

	payload, codec, err := p.Pack(0, TierCold, src)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if codec != CodecZstd {
		t.Fatalf("packed codec = %q", codec)
	}
	out, err := Unpack(codec, payload)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if !bytes.Equal(out, src) {
		t.Fatal("pack round trip corrupted data")
	}
	if _, err := Unpack("bogus", payload); err == nil {
		t.Fatal("unknown codec accepted on unpack")
	}
}
