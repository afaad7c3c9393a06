package memory_test

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/parlorhq/parlor/pkg/memory"
)

func strptr(s string) *string { return &s }

var _ = Describe("Merge", func() {
	It("overlays profile fields last-write-wins", func() {
		current := memory.Default()
		current.Profile.Name = strptr("Ana")

		merged := memory.Merge(current, memory.Update{
			Profile: memory.Profile{Name: strptr("Bea"), Role: strptr("engineer")},
		}, 20)

		Expect(*merged.Profile.Name).To(Equal("Bea"))
		Expect(*merged.Profile.Role).To(Equal("engineer"))
	})

	It("leaves profile fields untouched when the update omits them", func() {
		current := memory.Default()
		current.Profile.Name = strptr("Ana")

		merged := memory.Merge(current, memory.Update{Facts: []string{"likes tea"}}, 20)

		Expect(*merged.Profile.Name).To(Equal("Ana"))
		Expect(merged.Profile.Role).To(BeNil())
	})

	It("overlays preferences per key", func() {
		current := memory.Default()
		merged := memory.Merge(current, memory.Update{
			Preferences: map[string]string{"language": "fr", "format": "markdown"},
		}, 20)

		Expect(merged.Preferences["language"]).To(Equal("fr"))
		Expect(merged.Preferences["tone"]).To(Equal("neutral"))
		Expect(merged.Preferences["format"]).To(Equal("markdown"))
	})

	It("trims whitespace and skips empty fact entries", func() {
		merged := memory.Merge(memory.Default(), memory.Update{
			Facts: []string{"  likes tea  ", "", "   "},
		}, 20)

		Expect(merged.Facts).To(Equal([]string{"likes tea"}))
	})

	It("does not re-append exact duplicates", func() {
		current := memory.Merge(memory.Default(), memory.Update{Facts: []string{"likes tea"}}, 20)
		merged := memory.Merge(current, memory.Update{Facts: []string{"likes tea", "has a dog"}}, 20)

		Expect(merged.Facts).To(Equal([]string{"likes tea", "has a dog"}))
	})

	It("caps lists at the last maxItems entries, evicting oldest first", func() {
		current := memory.Default()
		for i := 1; i <= 25; i++ {
			current = memory.Merge(current, memory.Update{
				Facts: []string{fmt.Sprintf("fact %02d", i)},
			}, 20)
		}

		Expect(current.Facts).To(HaveLen(20))
		Expect(current.Facts[0]).To(Equal("fact 06"))
		Expect(current.Facts[19]).To(Equal("fact 25"))
	})

	It("is idempotent", func() {
		base := memory.Default()
		base.Profile.Name = strptr("Ana")
		base.Facts = []string{"likes tea"}

		update := memory.Update{
			Profile:     memory.Profile{Role: strptr("teacher")},
			Preferences: map[string]string{"tone": "formal"},
			Facts:       []string{"likes tea", "has a dog"},
			Todos:       []string{"book flights"},
		}

		once := memory.Merge(base, update, 20)
		twice := memory.Merge(once, update, 20)

		Expect(twice).To(Equal(once))
	})

	It("normalizes a malformed current record", func() {
		merged := memory.Merge(memory.Memory{}, memory.Update{Facts: []string{"x"}}, 20)

		Expect(merged.Preferences).NotTo(BeNil())
		Expect(merged.Facts).To(Equal([]string{"x"}))
		Expect(merged.Todos).To(BeEmpty())
	})

	It("does not mutate the current record", func() {
		current := memory.Default()
		current.Facts = []string{"original"}

		_ = memory.Merge(current, memory.Update{Facts: []string{"added"}}, 20)

		Expect(current.Facts).To(Equal([]string{"original"}))
	})
})

var _ = Describe("WithDefaults", func() {
	It("backfills the default preferences into a partial record", func() {
		rec := memory.Memory{
			Profile: memory.Profile{Name: strptr("Ana")},
			Facts:   []string{"likes tea"},
		}.WithDefaults()

		Expect(*rec.Profile.Name).To(Equal("Ana"))
		Expect(rec.Facts).To(Equal([]string{"likes tea"}))
		Expect(rec.Preferences).To(Equal(map[string]string{"language": "en", "tone": "neutral"}))
		Expect(rec.Todos).To(BeEmpty())
	})

	It("prefers the record's own entries over the defaults", func() {
		rec := memory.Memory{
			Preferences: map[string]string{"tone": "formal", "format": "markdown"},
		}.WithDefaults()

		Expect(rec.Preferences).To(Equal(map[string]string{
			"language": "en",
			"tone":     "formal",
			"format":   "markdown",
		}))
	})

	It("shares no storage with the receiver", func() {
		src := memory.Memory{
			Preferences: map[string]string{"tone": "formal"},
			Facts:       []string{"likes tea"},
		}
		rec := src.WithDefaults()

		rec.Preferences["tone"] = "neutral"
		rec.Facts[0] = "changed"

		Expect(src.Preferences["tone"]).To(Equal("formal"))
		Expect(src.Facts[0]).To(Equal("likes tea"))
	})
})

var _ = Describe("ParseUpdate", func() {
	It("parses a full update", func() {
		upd, err := memory.ParseUpdate(`{
			"profile": {"name": "Ana", "role": null},
			"preferences": {"language": "en"},
			"facts": ["likes tea"],
			"todos": ["book flights"]
		}`)

		Expect(err).NotTo(HaveOccurred())
		Expect(*upd.Profile.Name).To(Equal("Ana"))
		Expect(upd.Profile.Role).To(BeNil())
		Expect(upd.Preferences).To(HaveKeyWithValue("language", "en"))
		Expect(upd.Facts).To(Equal([]string{"likes tea"}))
		Expect(upd.Todos).To(Equal([]string{"book flights"}))
	})

	It("returns ErrParse for non-JSON output", func() {
		_, err := memory.ParseUpdate("Sure! Here's the update you asked for:")
		Expect(err).To(MatchError(memory.ErrParse))
	})

	It("returns ErrParse for a non-object top level", func() {
		_, err := memory.ParseUpdate(`["facts"]`)
		Expect(err).To(MatchError(memory.ErrParse))
	})

	It("parses the empty object as an empty update", func() {
		upd, err := memory.ParseUpdate(`{}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(upd.IsEmpty()).To(BeTrue())
	})

	It("discards wrong-typed fields and non-string list entries", func() {
		upd, err := memory.ParseUpdate(`{
			"profile": "not a map",
			"preferences": {"language": 7},
			"facts": ["real", 42, null, {"k": "v"}],
			"todos": "not a list"
		}`)

		Expect(err).NotTo(HaveOccurred())
		Expect(upd.Profile.Name).To(BeNil())
		Expect(upd.Preferences).To(BeEmpty())
		Expect(upd.Facts).To(Equal([]string{"real"}))
		Expect(upd.Todos).To(BeNil())
	})
})
