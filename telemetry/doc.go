// Package telemetry wires OpenTelemetry tracing for threads.
//
// A Spawner configured WithTracer opens one span per thread, named
// "thread.<short name>", when the thread is registered and ends it when the
// body returns. The span context parents the scope context, so spans the
// body starts from Scope.Context() nest under the thread span.
//
//	p, err := telemetry.InitProvider(ctx, telemetry.ProviderConfig{Exporter: "stdout"})
//	defer p.Shutdown(ctx)
//	sp := threads.NewSpawner(threads.WithTracer(p.Tracer()))
package telemetry
