package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"client_portal/internal/client/api"
	"client_portal/internal/flow"

	"golang.org/x/term"
)

func main() {
	baseURL := flag.String("addr", "http://localhost:8080", "auth service base URL")
	flag.Parse()

	client := api.New(*baseURL)
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("1) Sign in")
	fmt.Println("2) Sign up")
	choice, _ := readLine(reader, "> ")

	var ctrl *flow.Controller
	if choice == "2" {
		ctrl = flow.NewRegisterController(client)
	} else {
		ctrl = flow.NewController(client)
	}

	run(context.Background(), ctrl, reader)
}

// run pumps the flow controller until a terminal state. The countdown is
// cooperative: elapsed wall time is replayed as ticks before each prompt, so
// no timer goroutine outlives a step.
func run(ctx context.Context, ctrl *flow.Controller, reader *bufio.Reader) {
	lastTick := time.Now()

	for {
		for elapsed := time.Since(lastTick); elapsed >= time.Second; elapsed -= time.Second {
			ctrl.Tick()
			lastTick = lastTick.Add(time.Second)
		}

		switch ctrl.State() {
		case flow.StateCredentials:
			stepCredentials(ctx, ctrl, reader)
		case flow.StateRegister:
			stepRegister(ctx, ctrl, reader)
		case flow.StateOTPPending:
			lastTick = time.Now()
			stepOTP(ctx, ctrl, reader)
		case flow.StatePasswordReset:
			stepNewPassword(ctx, ctrl)
		case flow.StateAuthenticated:
			fmt.Println("Signed in. Session token:")
			fmt.Println(ctrl.Token())
			return
		case flow.StateSuccess:
			fmt.Println("Password reset. You can sign in with the new password now.")
			return
		}

		showErrors(ctrl)
	}
}

func stepCredentials(ctx context.Context, ctrl *flow.Controller, reader *bufio.Reader) {
	email, _ := readLine(reader, "Email (or 'forgot' to reset your password): ")

	if email == "forgot" {
		email, _ = readLine(reader, "Account email: ")
		_ = ctrl.ForgotPassword(ctx, email)
		return
	}

	pass, err := readPassword("Password: ")
	if err != nil {
		fmt.Println(err.Error())
		return
	}

	_ = ctrl.SubmitCredentials(ctx, email, pass)
}

func stepRegister(ctx context.Context, ctrl *flow.Controller, reader *bufio.Reader) {
	fullName, _ := readLine(reader, "Full name: ")
	email, _ := readLine(reader, "Email: ")
	role, _ := readLine(reader, "Role (investor/entrepreneur): ")

	pass, err := readPassword("Password: ")
	if err != nil {
		fmt.Println(err.Error())
		return
	}

	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fmt.Println(err.Error())
		return
	}

	_ = ctrl.SubmitRegistration(ctx, fullName, email, pass, confirm, role)
}

func stepOTP(ctx context.Context, ctrl *flow.Controller, reader *bufio.Reader) {
	if ctrl.CanResend() {
		fmt.Println("Didn't receive the code? Type 'resend' to get a new one.")
	} else {
		fmt.Printf("Code expires in %ds.\n", ctrl.Remaining())
	}

	code, _ := readLine(reader, "Enter the 4-digit code: ")
	if code == "resend" {
		if !ctrl.CanResend() {
			fmt.Println("Please wait for the countdown to finish first.")
			return
		}
		_ = ctrl.Resend(ctx)
		return
	}

	_ = ctrl.SubmitCode(ctx, code)
}

func stepNewPassword(ctx context.Context, ctrl *flow.Controller) {
	pass, err := readPassword("New password: ")
	if err != nil {
		fmt.Println(err.Error())
		return
	}

	confirm, err := readPassword("Confirm new password: ")
	if err != nil {
		fmt.Println(err.Error())
		return
	}

	_ = ctrl.SubmitNewPassword(ctx, pass, confirm)
}

func showErrors(ctrl *flow.Controller) {
	for field, msg := range ctrl.FieldErrors() {
		fmt.Printf("%s: %s\n", field, msg)
	}
	if ctrl.BackendError() != "" {
		fmt.Println(ctrl.BackendError())
	}
}

func readLine(reader *bufio.Reader, prompt string) (string, error) {
	fmt.Print(prompt)

	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(line), nil
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)

	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}

	return string(pass), nil
}
