package poolerrors_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

// Example demonstrates creating a credential error.
func Example() {
	err := poolerrors.New(poolerrors.ErrorTypeAuthentication, "wrong username").
		WithDetail("username", "scott")

	fmt.Println(err.Error())
	fmt.Println(poolerrors.IsRetryable(err))

	// Output:
	// authentication: wrong username
	// false
}

// ExampleWrap shows wrapping a driver failure as a connection error.
func ExampleWrap() {
	err := poolerrors.Wrap(context.DeadlineExceeded, poolerrors.ErrorTypeConnection, "unable to fetch connection").
		WithDetail("url", "postgres://localhost:5432/app")

	if poolerrors.IsType(err, poolerrors.ErrorTypeConnection) {
		fmt.Println("connection error")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		fmt.Println("caused by deadline")
	}

	// Output:
	// connection error
	// caused by deadline
}

// ExampleGetType shows classifying foreign errors.
func ExampleGetType() {
	fmt.Println(poolerrors.GetType(errors.New("plain")))
	fmt.Println(poolerrors.GetType(poolerrors.New(poolerrors.ErrorTypeState, "pool closed")))

	// Output:
	// internal
	// state
}
