package core

type (
	// Logger logs a message along with optional args.
	// expected args: error | map[string]interface{} | Actor
	Logger interface {
		Debug(msg string, args ...interface{})
		Info(msg string, args ...interface{})
		Warn(msg string, args ...interface{})
		Error(msg string, args ...interface{})
		Fatal(msg string, args ...interface{})
	}

	// Actor identifies who triggered the logged event (a user or a service account).
	Actor struct {
		ID       string
		Username string
		Email    string
	}
)
