package main

import (
	"flag"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/calder-eth/batchsettle/params"
	"github.com/calder-eth/batchsettle/pkg/crypto"
	"github.com/calder-eth/batchsettle/pkg/engine"
)

func main() {
	keyHex := flag.String("key", "", "private key hex (generates a new key if empty)")
	sellToken := flag.String("sell-token", "", "sell token address")
	buyToken := flag.String("buy-token", "", "buy token address")
	sellAmount := flag.String("sell-amount", "1000000000000000000", "sell amount (wei)")
	buyAmount := flag.String("buy-amount", "1000000000000000000", "minimum buy amount (wei)")
	executed := flag.String("executed", "", "executed amount (defaults to sell amount)")
	validTo := flag.Uint("valid-to", 4000000000, "expiry as unix timestamp")
	nonce := flag.Uint("nonce", 1, "order nonce")
	orderType := flag.Uint("type", 0, "order type: 0=sell, 1=buy, 2=kill-or-fill")
	flag.Parse()

	// Step 1: Generate or load key
	var signer *crypto.Signer
	var err error
	if *keyHex == "" {
		fmt.Println("Generating new keypair...")
		signer, err = crypto.GenerateKey()
	} else {
		signer, err = crypto.FromPrivateKeyHex(*keyHex)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Address: %s\n", signer.Address().Hex())
	if *keyHex == "" {
		fmt.Printf("Private Key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
	}
	fmt.Println()

	// Step 2: Create order
	if !common.IsHexAddress(*sellToken) || !common.IsHexAddress(*buyToken) {
		fmt.Println("Error: -sell-token and -buy-token must be hex addresses")
		os.Exit(1)
	}
	sell, ok := new(big.Int).SetString(*sellAmount, 10)
	if !ok {
		fmt.Printf("Error: bad sell amount %q\n", *sellAmount)
		os.Exit(1)
	}
	buy, ok := new(big.Int).SetString(*buyAmount, 10)
	if !ok {
		fmt.Printf("Error: bad buy amount %q\n", *buyAmount)
		os.Exit(1)
	}
	exec := new(big.Int).Set(sell)
	if *executed != "" {
		if exec, ok = new(big.Int).SetString(*executed, 10); !ok {
			fmt.Printf("Error: bad executed amount %q\n", *executed)
			os.Exit(1)
		}
	}

	order := engine.Order{
		SellAmount:     sell,
		BuyAmount:      buy,
		ExecutedAmount: exec,
		SellToken:      common.HexToAddress(*sellToken),
		BuyToken:       common.HexToAddress(*buyToken),
		Tip:            new(big.Int),
		ValidTo:        uint32(*validTo),
		Nonce:          uint32(*nonce),
		Type:           engine.OrderType(*orderType),
	}

	fmt.Println("Order Details:")
	fmt.Printf("  Sell: %s of %s\n", order.SellAmount.String(), order.SellToken.Hex())
	fmt.Printf("  Buy (min): %s of %s\n", order.BuyAmount.String(), order.BuyToken.Hex())
	fmt.Printf("  Executed: %s\n", order.ExecutedAmount.String())
	fmt.Printf("  Type: %d\n", order.Type)
	fmt.Printf("  ValidTo: %d  Nonce: %d\n\n", order.ValidTo, order.Nonce)

	// Step 3: Sign against the deployment domain
	cfg := params.LoadFromEnv("")
	domain := crypto.NewDomain(cfg.Chain.DomainTag, cfg.Chain.ID, cfg.Chain.EngineAddress)
	fmt.Printf("Domain separator: %s\n", domain.Separator().Hex())

	if err := order.Sign(domain, signer); err != nil {
		fmt.Printf("Error signing: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Signature: v=%d r=0x%x s=0x%x\n\n", order.V, order.R, order.S)

	// Step 4: Encode the wire record
	record := order.Encode()
	fmt.Printf("Order record (%d bytes):\n0x%x\n\n", len(record), record)

	// Step 5: Verify by decoding and recovering the owner
	fmt.Println("Verifying record...")
	decoded, err := engine.DecodeOrders(record, []engine.OrderType{order.Type}, domain)
	if err != nil {
		fmt.Printf("Error decoding: %v\n", err)
		os.Exit(1)
	}
	if decoded[0].Owner != signer.Address() {
		fmt.Printf("Recovered owner %s does not match signer\n", decoded[0].Owner.Hex())
		os.Exit(1)
	}
	fmt.Printf("Recovered owner: %s (matches signer)\n\n", decoded[0].Owner.Hex())

	// Step 6: Show how to submit
	fmt.Println("Include this record in a settlement batch:")
	fmt.Println("  POST http://localhost:8547/api/v1/settle")
	fmt.Println("  with the record concatenated into the \"orders\" field")
}
