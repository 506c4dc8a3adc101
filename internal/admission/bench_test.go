package admission

import (
	"fmt"
	"testing"
)

func BenchmarkEvaluate_ExactMatch(b *testing.B) {
	p := MustPolicy("pkg.safe.SafeClass")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Evaluate("pkg.safe.SafeClass")
	}
}

func BenchmarkEvaluate_NamespaceMatch(b *testing.B) {
	p := MustPolicy("pkg.safe.*")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Evaluate("pkg.safe.inner.SafeClass")
	}
}

func BenchmarkEvaluate_LargePolicyNoMatch(b *testing.B) {
	allow := make([]string, 0, 1000)
	for i := 0; i < 1000; i++ {
		allow = append(allow, fmt.Sprintf("pkg.ns%d.*", i))
	}
	p, err := NewPolicy(allow, nil, "")
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Evaluate("org.gadget.Probe")
	}
}

func BenchmarkGate_Parallel(b *testing.B) {
	g := NewGate(MustPolicy("pkg.safe.*"))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			g.Evaluate("pkg.safe.SafeClass")
		}
	})
}
