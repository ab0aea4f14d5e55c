package otel_test

import (
	"context"
	"os"

	"go.opentelemetry.io/otel/attribute"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ShaurayaMohan/TARS-Windscribe/common/otel"
	"github.com/ShaurayaMohan/TARS-Windscribe/core/config"
)

var _ = Describe("Setup", func() {
	It("is a no-op without an endpoint", func() {
		telemetry, err := otel.Setup(context.Background(), config.OTelConfig{})
		Expect(err).NotTo(HaveOccurred())
		Expect(telemetry).To(BeNil())
		Expect(telemetry.Shutdown(context.Background())).To(Succeed())
	})
})

var _ = Describe("NewResource", func() {
	It("identifies the service, its environment and this instance", func() {
		res, err := otel.NewResource(context.Background(), config.OTelConfig{
			ServiceName:    "tars",
			ServiceVersion: "1.4.0",
			Environment:    "staging",
		})
		Expect(err).NotTo(HaveOccurred())

		value := func(key string) string {
			v, ok := res.Set().Value(attribute.Key(key))
			Expect(ok).To(BeTrue(), key)
			return v.AsString()
		}
		host, _ := os.Hostname()

		Expect(value("service.name")).To(Equal("tars"))
		Expect(value("service.version")).To(Equal("1.4.0"))
		Expect(value("deployment.environment")).To(Equal("staging"))
		Expect(value("service.instance.id")).To(Equal(host))
		Expect(value("telemetry.sdk.language")).To(Equal("go"))
	})

	It("lets OTEL_RESOURCE_ATTRIBUTES override configured values", func() {
		prev, had := os.LookupEnv("OTEL_RESOURCE_ATTRIBUTES")
		Expect(os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment=canary")).To(Succeed())
		DeferCleanup(func() {
			if had {
				_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", prev)
			} else {
				_ = os.Unsetenv("OTEL_RESOURCE_ATTRIBUTES")
			}
		})

		res, err := otel.NewResource(context.Background(), config.OTelConfig{ServiceName: "tars", Environment: "staging"})
		Expect(err).NotTo(HaveOccurred())
		v, _ := res.Set().Value(attribute.Key("deployment.environment"))
		Expect(v.AsString()).To(Equal("canary"))
	})
})

var _ = Describe("ParseHeaders", func() {
	DescribeTable("parses comma separated pairs",
		func(input string, expected map[string]string) {
			Expect(otel.ParseHeaders(input)).To(Equal(expected))
		},
		Entry("empty", "", map[string]string{}),
		Entry("single pair", "x-api-key=abc", map[string]string{"x-api-key": "abc"}),
		Entry("trims whitespace", " a = 1 , b=2", map[string]string{"a": "1", "b": "2"}),
		Entry("skips malformed pairs", "a=1,broken,=x", map[string]string{"a": "1"}),
		Entry("keeps '=' in values", "auth=Basic a=b", map[string]string{"auth": "Basic a=b"}),
	)
})
