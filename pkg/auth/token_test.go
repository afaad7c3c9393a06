package auth_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/parlorhq/parlor/pkg/auth"
)

var _ = Describe("Tokens", func() {
	const secret = "test-secret"

	It("round trips subject, roles, and department", func() {
		token, err := auth.CreateAccessToken(secret, "user-1", []string{"admin"}, "it", time.Hour)
		Expect(err).NotTo(HaveOccurred())

		claims, err := auth.DecodeAccessToken(secret, token)
		Expect(err).NotTo(HaveOccurred())
		Expect(claims.Subject).To(Equal("user-1"))
		Expect(claims.Roles).To(Equal([]string{"admin"}))
		Expect(claims.Department).To(Equal("it"))
		Expect(claims.ExpiresAt.Time).To(BeTemporally(">", time.Now()))
	})

	It("requires a secret", func() {
		_, err := auth.CreateAccessToken("", "user-1", nil, "it", time.Hour)
		Expect(err).To(MatchError(auth.ErrMissingSecret))

		_, err = auth.DecodeAccessToken("", "whatever")
		Expect(err).To(MatchError(auth.ErrMissingSecret))
	})

	It("rejects a token signed with another secret", func() {
		token, err := auth.CreateAccessToken("other-secret", "user-1", nil, "it", time.Hour)
		Expect(err).NotTo(HaveOccurred())

		_, err = auth.DecodeAccessToken(secret, token)
		Expect(err).To(HaveOccurred())
	})

	It("rejects an expired token", func() {
		token, err := auth.CreateAccessToken(secret, "user-1", nil, "it", -time.Minute)
		Expect(err).NotTo(HaveOccurred())

		_, err = auth.DecodeAccessToken(secret, token)
		Expect(err).To(HaveOccurred())
	})
})
