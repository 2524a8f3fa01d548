package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/abebabank/abeba-card-system/internal/cardgen"
	"github.com/abebabank/abeba-card-system/internal/expiry"
)

var (
	flagPrefix  = flag.String("prefix", cardgen.BrandPrefix, "brand digit prefix")
	flagHolder  = flag.String("holder", "", "cardholder name")
	flagUser    = flag.String("user", "", "owning user ID (required with -server)")
	flagServer  = flag.String("server", "", "card system base URL; when set, issues the card via POST /cards")
	flagYears   = flag.Int("years", expiry.DefaultValidityYears, "validity years")
	flagVerbose = flag.Bool("verbose", false, "print full card number (otherwise masked)")
)

func main() {
	flag.Parse()
	must(cardgen.ValidatePrefix(*flagPrefix))
	if *flagHolder == "" {
		fail("-holder is required")
	}

	if *flagServer != "" {
		if *flagUser == "" {
			fail("-user is required with -server")
		}
		issueRemote(strings.TrimRight(*flagServer, "/"), *flagUser, *flagHolder)
		return
	}

	// Offline sample: numbers generated here are valid card shapes but are
	// not registered anywhere.
	number := must1(cardgen.GenerateNumber(*flagPrefix))
	cvv := must1(cardgen.GenerateCVV())
	face := expiry.CardFace(time.Now(), *flagYears)

	printNumber := cardgen.Mask(number)
	if *flagVerbose {
		printNumber = cardgen.Format(number) + "   (WARNING: printing full number)"
	}

	fmt.Printf("NUMBER: %s\nEXP: %s\nCVV: %s\n", printNumber, face, cvv)
}

func issueRemote(base, userID, holder string) {
	body, _ := json.Marshal(struct {
		UserID     string `json:"userId"`
		CardHolder string `json:"cardHolder"`
	}{userID, holder})

	cli := &http.Client{Timeout: 10 * time.Second}
	resp, err := cli.Post(base+"/cards", "application/json", bytes.NewReader(body))
	must(err)
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		fail("issue status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var card struct {
		CardNumber string `json:"cardNumber"`
		ExpiryDate string `json:"expiryDate"`
		CVV        string `json:"cvv"`
	}
	must(json.Unmarshal(raw, &card))

	printNumber := cardgen.Mask(card.CardNumber)
	if *flagVerbose {
		printNumber = card.CardNumber + "   (WARNING: printing full number)"
	}
	fmt.Printf("NUMBER: %s\nEXP: %s\nCVV: %s\n", printNumber, card.ExpiryDate, card.CVV)
}

func must(err error) {
	if err != nil {
		fail("%v", err)
	}
}

func must1[T any](v T, err error) T {
	if err != nil {
		fail("%v", err)
	}
	return v
}

func fail(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
