package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"golang.org/x/term"

	"github.com/easelapp/easel/adapter"
	"github.com/easelapp/easel/layers"
)

const EaselCtlVersion = "0.0.1"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Easel control.

The default url is:
    url: ws://127.0.0.1:8697/pair

Usage:
    easelctl pair
    easelctl layers [--url=<url>] [--secret=<secret>]
        [--document=<document_id>]
    easelctl watch [--url=<url>] [--secret=<secret>]
        [--events=<events>]
    easelctl play [--url=<url>] [--secret=<secret>]
        --name=<name>
        [<params>]

Options:
    -h --help                  Show this screen.
    --version                  Show version.
    --url=<url>
    --secret=<secret>          Pairing secret (hex). Prompted if unset.
    --document=<document_id>   Document to list. Defaults to active.
    --events=<events>          Comma-separated host event names.
    --name=<name>              Action descriptor name.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], EaselCtlVersion)
	if err != nil {
		panic(err)
	}

	if pair_, _ := opts.Bool("pair"); pair_ {
		pair(opts)
	} else if layers_, _ := opts.Bool("layers"); layers_ {
		listLayers(opts)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		watch(opts)
	} else if play_, _ := opts.Bool("play"); play_ {
		play(opts)
	}
}

// mint a new pairing secret. The same secret must be entered on the
// host side for pairing to succeed.
func pair(opts docopt.Opts) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(err)
	}
	Out.Printf("%s", hex.EncodeToString(secret))
}

func connect(opts docopt.Opts) (*adapter.HostAdapter, func()) {
	config, err := adapter.LoadConfig()
	if err != nil {
		Err.Fatalf("Could not load config (%s).", err)
	}
	if url, _ := opts.String("--url"); url != "" {
		config.Url = url
	}
	if secret, _ := opts.String("--secret"); secret != "" {
		config.Secret = secret
	}
	if config.Secret == "" {
		fmt.Fprintf(os.Stderr, "Pairing secret: ")
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintf(os.Stderr, "\n")
		if err != nil {
			Err.Fatalf("Could not read secret (%s).", err)
		}
		config.Secret = strings.TrimSpace(string(secret))
	}

	auth, err := config.Auth()
	if err != nil {
		Err.Fatalf("Bad secret (%s).", err)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	hostAdapter := adapter.NewHostAdapter(cancelCtx, config.Url, auth, config.Settings())
	return hostAdapter, func() {
		hostAdapter.Close()
		cancel()
	}
}

func listLayers(opts docopt.Opts) {
	hostAdapter, close := connect(opts)
	defer close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dispatcher := layers.NewDispatcher()
	store := layers.NewDocumentStore(dispatcher)
	scheduler := layers.NewSchedulerWithDefaults(ctx)
	commands := layers.NewLayerCommandsWithDefaults(ctx, hostAdapter, store, dispatcher, scheduler)

	var documentId layers.DocumentId
	if documentIdInt, err := opts.Int("--document"); err == nil && documentIdInt != 0 {
		documentId = layers.DocumentId(documentIdInt)
	} else {
		result, err := hostAdapter.PlayObject(ctx, &layers.PlayDescriptor{
			Name: "get",
			Params: map[string]any{
				"property": "documentID",
			},
		})
		if err != nil {
			Err.Fatalf("Could not find the active document (%s).", err)
		}
		id, ok := result["documentID"].(float64)
		if !ok {
			Err.Fatalf("No open document.")
		}
		documentId = layers.DocumentId(id)
	}

	if err := commands.ResetDocument(ctx, documentId); err != nil {
		Err.Fatalf("Could not read the document (%s).", err)
	}

	model := store.Document(documentId)
	if model == nil {
		Err.Fatalf("No document %d.", documentId)
	}
	// top first, the way the panel draws them
	nodes := model.Layers()
	for i := len(nodes) - 1; 0 <= i; i -= 1 {
		node := nodes[i]
		selected := " "
		if node.Selected {
			selected = "*"
		}
		Out.Printf("%s %s%s", selected, strings.Repeat("  ", node.Depth), node)
	}
}

func watch(opts docopt.Opts) {
	hostAdapter, close := connect(opts)
	defer close()

	eventNames := []string{
		"make",
		"set",
		"select",
		"delete",
		"autoCanvasResizeShifted",
	}
	if events, _ := opts.String("--events"); events != "" {
		eventNames = strings.Split(events, ",")
	}

	for _, eventName := range eventNames {
		unsub := hostAdapter.AddListener(eventName, func(event string, body map[string]any) {
			bodyJson, _ := json.Marshal(body)
			Out.Printf("%s %s", event, bodyJson)
		})
		defer unsub()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
}

func play(opts docopt.Opts) {
	hostAdapter, close := connect(opts)
	defer close()

	name, _ := opts.String("--name")

	params := map[string]any{}
	if paramsJson, _ := opts.String("<params>"); paramsJson != "" {
		if err := json.Unmarshal([]byte(paramsJson), &params); err != nil {
			Err.Fatalf("Params must be JSON (%s).", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := hostAdapter.PlayObject(ctx, &layers.PlayDescriptor{
		Name: name,
		Params: params,
	})
	if err != nil {
		Err.Fatalf("Play failed (%s).", err)
	}
	resultJson, _ := json.MarshalIndent(result, "", "    ")
	Out.Printf("%s", resultJson)
}
