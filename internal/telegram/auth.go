/*
 * Copyright (C) 2026  Henrique Almeida
 * This file is part of OrderScout.
 *
 * OrderScout is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published
 * by the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * OrderScout is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with OrderScout.  If not, see <https://www.gnu.org/licenses/>.
 */

package telegram

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/auth/qrlogin"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"go.uber.org/zap"
	"rsc.io/qr"
)

// Implement auth.UserAuthenticator for interactive login
type terminalAuthenticator struct {
	phone    string
	password string
	reader   io.Reader
	writer   io.Writer
}

func (a *terminalAuthenticator) Phone(ctx context.Context) (string, error) {
	if a.phone != "" {
		return a.phone, nil
	}
	fmt.Fprint(a.writer, "Enter Phone: ")
	return a.readLine()
}

func (a *terminalAuthenticator) Password(ctx context.Context) (string, error) {
	if a.password != "" {
		return a.password, nil
	}
	fmt.Fprintln(a.writer, "2FA Enabled: Cloud password required.")
	fmt.Fprint(a.writer, "Enter Password: ")
	return a.readLine()
}

// Prompt user to enter login code
func (a *terminalAuthenticator) Code(ctx context.Context, sentCode *tg.AuthSentCode) (string, error) {
	fmt.Fprintln(a.writer, "Action Required: Please enter the login code sent to your Telegram app or via SMS.")
	fmt.Fprint(a.writer, "Enter Code: ")
	return a.readLine()
}

func (a *terminalAuthenticator) AcceptTermsOfService(ctx context.Context, tos tg.HelpTermsOfService) error {
	return nil
}

func (a *terminalAuthenticator) SignUp(ctx context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("signup not supported in OrderScout")
}

func (a *terminalAuthenticator) readLine() (string, error) {
	var s string
	if _, err := fmt.Fscanln(a.reader, &s); err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// Configure an interactive login
type LoginOptions struct {
	AppID    int
	AppHash  string
	Phone    string
	Password string
	// Log in by scanning a QR code instead of typing a code
	QR  bool
	In  io.Reader
	Out io.Writer
	Log *zap.Logger
}

// Hold the outcome of a successful login
type LoginResult struct {
	Credential string
	UserID     int64
	Username   string
}

// Login runs an interactive authentication and returns the new session credential
func Login(ctx context.Context, opts LoginOptions) (*LoginResult, error) {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	store := newMemorySession("")
	dispatcher := tg.NewUpdateDispatcher()
	client := telegram.NewClient(opts.AppID, opts.AppHash, telegram.Options{
		Logger:         opts.Log.Named("mtproto"),
		SessionStorage: store,
		UpdateHandler:  dispatcher,
	})

	authenticator := &terminalAuthenticator{
		phone:    opts.Phone,
		password: opts.Password,
		reader:   opts.In,
		writer:   opts.Out,
	}

	var self *tg.User
	err := client.Run(ctx, func(ctx context.Context) error {
		if opts.QR {
			if err := loginQR(ctx, client, dispatcher, authenticator, opts.Out); err != nil {
				return err
			}
		} else {
			flow := auth.NewFlow(authenticator, auth.SendCodeOptions{})
			if err := client.Auth().IfNecessary(ctx, flow); err != nil {
				return errors.Wrap(err, "authentication failed")
			}
		}

		u, err := client.Self(ctx)
		if err != nil {
			return errors.Wrap(err, "get self")
		}
		self = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Credential: store.Credential(),
		UserID:     self.ID,
		Username:   self.Username,
	}, nil
}

func loginQR(ctx context.Context, client *telegram.Client, d tg.UpdateDispatcher, a *terminalAuthenticator, out io.Writer) error {
	loggedIn := qrlogin.OnLoginToken(d)
	_, err := client.QR().Auth(ctx, loggedIn, func(ctx context.Context, token qrlogin.Token) error {
		fmt.Fprintln(out, "Scan this code in Telegram: Settings > Devices > Link Desktop Device")
		return renderQR(out, token.URL())
	})
	if err == nil {
		return nil
	}
	if !tgerr.Is(err, "SESSION_PASSWORD_NEEDED") {
		return errors.Wrap(err, "qr login")
	}

	pwd, err := a.Password(ctx)
	if err != nil {
		return err
	}
	if _, err := client.Auth().Password(ctx, pwd); err != nil {
		return errors.Wrap(err, "2fa password")
	}
	return nil
}

// Draw a QR code with half-block characters, light modules filled
func renderQR(w io.Writer, text string) error {
	code, err := qr.Encode(text, qr.L)
	if err != nil {
		return errors.Wrap(err, "encode qr")
	}

	const quiet = 2
	var b strings.Builder
	for y := -quiet; y < code.Size+quiet; y += 2 {
		for x := -quiet; x < code.Size+quiet; x++ {
			top, bottom := !code.Black(x, y), !code.Black(x, y+1)
			switch {
			case top && bottom:
				b.WriteString("█")
			case top:
				b.WriteString("▀")
			case bottom:
				b.WriteString("▄")
			default:
				b.WriteString(" ")
			}
		}
		b.WriteByte('\n')
	}
	_, err = io.WriteString(w, b.String())
	return err
}
