package main

import "context"

type appContextKey struct{}

func withAppContext(ctx context.Context, app *AppContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, appContextKey{}, app)
}

func appContextFrom(ctx context.Context) *AppContext {
	app, _ := ctx.Value(appContextKey{}).(*AppContext)
	return app
}
