// Package cli implements the bookshelfctl commands on top of the API client
// and the local session store.
package cli

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/patric-chuzhbe/bookshelf/internal/client/api"
	"github.com/patric-chuzhbe/bookshelf/internal/client/session"
	"github.com/patric-chuzhbe/bookshelf/internal/models"
)

const usage = `usage: bookshelfctl <command> [arguments]

commands:
  register                 create an account and log in
  login                    log in with email and password
  logout                   forget the local session
  whoami                   show the logged-in user
  feed [-page N] [-limit N]
                           list recommendations of everyone
  mine                     list your recommendations
  post -title T -caption C -rating R -image FILE
                           recommend a book
  delete ID                delete one of your recommendations`

var ErrUnknownCommand = errors.New("unknown command")

type apiClient interface {
	SetToken(token string)

	Register(ctx context.Context, request models.RegisterRequest) (*models.AuthResponse, error)

	Login(ctx context.Context, request models.LoginRequest) (*models.AuthResponse, error)

	Feed(ctx context.Context, page, limit int) (*models.BookPage, error)

	Mine(ctx context.Context) ([]models.Book, error)

	CreateBook(ctx context.Context, request models.CreateBookRequest) (*models.Book, error)

	DeleteBook(ctx context.Context, bookID string) error
}

type sessionStore interface {
	Save(s *session.Session) error

	Load() (*session.Session, error)

	Clear() error
}

type CLI struct {
	api          apiClient
	sessions     sessionStore
	in           *bufio.Reader
	out          io.Writer
	readPassword func() ([]byte, error)
	readFile     func(name string) ([]byte, error)
}

func New(client apiClient, sessions sessionStore, in io.Reader, out io.Writer) *CLI {
	c := &CLI{
		api:      client,
		sessions: sessions,
		in:       bufio.NewReader(in),
		out:      out,
		readFile: os.ReadFile,
	}
	c.readPassword = c.defaultReadPassword

	return c
}

// Run executes one command. The stored session, if any, is loaded first.
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(c.out, usage)
		return ErrUnknownCommand
	}

	current, err := c.sessions.Load()
	switch {
	case err == nil:
		c.api.SetToken(current.Token)
	case errors.Is(err, session.ErrNoSession):
	default:
		return err
	}

	command, rest := args[0], args[1:]
	switch command {
	case "register":
		err = c.register(ctx)
	case "login":
		err = c.login(ctx)
	case "logout":
		err = c.logout()
	case "whoami":
		err = c.whoami(current)
	case "feed":
		err = c.feed(ctx, rest)
	case "mine":
		err = c.mine(ctx)
	case "post":
		err = c.post(ctx, rest)
	case "delete":
		err = c.delete(ctx, rest)
	default:
		fmt.Fprintln(c.out, usage)
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}

	if errors.Is(err, api.ErrUnauthorized) {
		if clearErr := c.sessions.Clear(); clearErr != nil {
			return clearErr
		}
		fmt.Fprintln(c.out, "Your session has expired. Run `bookshelfctl login` to sign in again.")
	}

	return err
}

func (c *CLI) register(ctx context.Context) error {
	email, err := c.prompt("Email")
	if err != nil {
		return err
	}
	userName, err := c.prompt("Username")
	if err != nil {
		return err
	}
	password, err := c.password()
	if err != nil {
		return err
	}

	result, err := c.api.Register(ctx, models.RegisterRequest{Email: email, UserName: userName, Password: password})
	if err != nil {
		return err
	}

	return c.startSession(result)
}

func (c *CLI) login(ctx context.Context) error {
	email, err := c.prompt("Email")
	if err != nil {
		return err
	}
	password, err := c.password()
	if err != nil {
		return err
	}

	result, err := c.api.Login(ctx, models.LoginRequest{Email: email, Password: password})
	if err != nil {
		return err
	}

	return c.startSession(result)
}

func (c *CLI) startSession(result *models.AuthResponse) error {
	if err := c.sessions.Save(&session.Session{Token: result.Token, User: result.User}); err != nil {
		return err
	}
	c.api.SetToken(result.Token)
	fmt.Fprintf(c.out, "Logged in as %s\n", result.User.UserName)

	return nil
}

func (c *CLI) logout() error {
	if err := c.sessions.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Logged out")

	return nil
}

func (c *CLI) whoami(current *session.Session) error {
	if current == nil {
		return session.ErrNoSession
	}
	fmt.Fprintf(c.out, "%s <%s>\n", current.User.UserName, current.User.Email)

	return nil
}

func (c *CLI) feed(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("feed", flag.ContinueOnError)
	flags.SetOutput(c.out)
	page := flags.Int("page", 1, "page number")
	limit := flags.Int("limit", 10, "books per page")
	if err := flags.Parse(args); err != nil {
		return err
	}

	result, err := c.api.Feed(ctx, *page, *limit)
	if err != nil {
		return err
	}

	for _, book := range result.Books {
		fmt.Fprintf(c.out, "%s  %s  %s  by %s\n", book.ID, stars(book.Rating), book.Title, book.User.UserName)
	}
	fmt.Fprintf(c.out, "page %d of %d, %d books\n", result.CurrentPage, result.TotalPages, result.TotalBooks)

	return nil
}

func (c *CLI) mine(ctx context.Context) error {
	books, err := c.api.Mine(ctx)
	if err != nil {
		return err
	}

	if len(books) == 0 {
		fmt.Fprintln(c.out, "You have not recommended anything yet")
		return nil
	}
	for _, book := range books {
		fmt.Fprintf(c.out, "%s  %s  %s  %s\n", book.ID, stars(book.Rating), book.Title, book.CreatedAt.Format("2006-01-02"))
	}

	return nil
}

func (c *CLI) post(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("post", flag.ContinueOnError)
	flags.SetOutput(c.out)
	title := flags.String("title", "", "book title")
	caption := flags.String("caption", "", "why you recommend it")
	rating := flags.Int("rating", 0, "rating from 1 to 5")
	imagePath := flags.String("image", "", "path to the cover image")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *imagePath == "" {
		return errors.New("-image is required")
	}

	image, err := c.imageDataURI(*imagePath)
	if err != nil {
		return err
	}

	book, err := c.api.CreateBook(ctx, models.CreateBookRequest{
		Title:   *title,
		Caption: *caption,
		Image:   image,
		Rating:  rating,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Posted %s (%s)\n", book.Title, book.ID)

	return nil
}

func (c *CLI) delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("delete expects exactly one book id")
	}

	if err := c.api.DeleteBook(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Deleted")

	return nil
}

// imageDataURI reads a local file and encodes it the way the API expects.
func (c *CLI) imageDataURI(path string) (string, error) {
	data, err := c.readFile(path)
	if err != nil {
		return "", fmt.Errorf("in internal/client/cli/cli.go/imageDataURI(): error while `c.readFile()` calling: %w", err)
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%s is not an image (%s)", path, contentType)
	}

	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (c *CLI) prompt(label string) (string, error) {
	fmt.Fprintf(c.out, "%s: ", label)
	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}

	return strings.TrimSpace(line), nil
}

func (c *CLI) password() (string, error) {
	fmt.Fprint(c.out, "Password: ")
	pw, err := c.readPassword()
	fmt.Fprintln(c.out)
	if err != nil {
		return "", err
	}

	return string(pw), nil
}

// defaultReadPassword hides the input on a terminal and falls back to a
// plain line when stdin is piped.
func (c *CLI) defaultReadPassword() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		return term.ReadPassword(fd)
	}

	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return nil, err
	}

	return []byte(strings.TrimRight(line, "\r\n")), nil
}

func stars(rating int) string {
	if rating < 0 {
		rating = 0
	}
	if rating > 5 {
		rating = 5
	}

	return strings.Repeat("★", rating) + strings.Repeat("☆", 5-rating)
}
