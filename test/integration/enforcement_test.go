//go:build integration

package integration

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
	"github.com/eliteGoblin/focusd/kioskd/internal/policy"
)

func ctx() context.Context {
	return context.Background()
}

var _ = Describe("Enforcement loop", func() {
	var h *harness

	BeforeEach(func() {
		h = newHarness(policy.NewAllowListWithExcursions("kiosk",
			[]domain.AppID{"com.example.settings"},
			[]domain.AppID{"com.example.camera"}))
		Expect(h.machine.Init(ctx())).To(Equal(domain.StateEnforced))
	})

	AfterEach(func() {
		h.watchdog.Close()
	})

	Context("when only the locked app is in front", func() {
		It("never recovers", func() {
			outcomes := h.play("kiosk", "kiosk")

			Expect(outcomes).To(HaveEach(domain.TickCompliant))
			Expect(h.recoveries()).To(BeZero())
		})
	})

	Context("when a forbidden app stays in front", func() {
		It("recovers once on the first sighting", func() {
			outcomes := h.play("kiosk", "other", "other", "kiosk")

			Expect(outcomes).To(Equal([]domain.TickOutcome{
				domain.TickCompliant,
				domain.TickRecovered,
				domain.TickDebounced,
				domain.TickCompliant,
			}))
			Expect(h.device.Fronts()).To(Equal([]domain.AppID{"kiosk"}))
		})

		It("recovers again after a compliant app clears the memo", func() {
			h.play("other", "other", "kiosk", "other")

			Expect(h.recoveries()).To(Equal(2))
		})
	})

	Context("when the forbidden app changes", func() {
		It("treats each change as a new violation", func() {
			h.play("other")
			Expect(h.recoveries()).To(Equal(1))

			h.play("other2", "other")

			Expect(h.recoveries()).To(Equal(3), "other2 and the return to other each recover")
			Expect(h.watchdog.LastViolation()).To(Equal(domain.AppID("other")))
		})
	})

	Context("with prefix allow-list entries", func() {
		It("allows sub-components and rejects look-alikes", func() {
			outcomes := h.play("com.example.settings.wifi", "com.example.settingsx")

			Expect(outcomes).To(Equal([]domain.TickOutcome{domain.TickAllowed, domain.TickRecovered}))
		})
	})

	Context("during an excursion", func() {
		It("permits excursion apps only while suspended", func() {
			_, ok := h.machine.Fire(ctx(), domain.LockEventExcursionStart)
			Expect(ok).To(BeTrue())
			Expect(h.device.Held()).To(BeFalse())

			Expect(h.play("com.example.camera")).To(Equal([]domain.TickOutcome{domain.TickAllowed}))

			h.machine.Fire(ctx(), domain.LockEventExcursionEnd)
			Expect(h.device.Held()).To(BeTrue())

			Expect(h.play("com.example.camera")).To(Equal([]domain.TickOutcome{domain.TickRecovered}))
		})
	})

	Context("when the platform denies privilege", func() {
		It("stays unprivileged and never enforces", func() {
			h.watchdog.Close()
			h = newHarness(policy.NewAllowList("kiosk"))
			h.device.SetPrivileged(false, false)

			Expect(h.machine.Init(ctx())).To(Equal(domain.StateUnprivileged))
			Expect(h.play("other")).To(Equal([]domain.TickOutcome{domain.TickSkipped}))
			Expect(h.device.Asserts()).To(BeZero())
			Expect(h.device.Messages()).NotTo(BeEmpty())
		})
	})
})
