// rootgen builds a campaign commitment off-band: given reward amounts in
// pack-index order it generates a random salt per pack, builds the merkle
// tree and prints the root plus each pack's (amount, salt, proof) reveal.
// The output file is the operator's secret; only the root is published.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/packworks/mysterypack/internal/merkle"
)

type packReveal struct {
	PackIndex uint32   `json:"pack_index"`
	Amount    uint64   `json:"amount"`
	Salt      string   `json:"salt"`
	Proof     []string `json:"proof"`
}

type commitment struct {
	MerkleRoot string       `json:"merkle_root"`
	TotalPacks uint32       `json:"total_packs"`
	Packs      []packReveal `json:"packs"`
}

func main() {
	amountsPath := flag.String("amounts", "", "path to a JSON array of reward amounts in pack-index order")
	outPath := flag.String("out", "commitment.json", "path to write the commitment file")
	flag.Parse()

	if *amountsPath == "" {
		fmt.Fprintln(os.Stderr, "usage: rootgen -amounts amounts.json [-out commitment.json]")
		os.Exit(1)
	}

	raw, err := os.ReadFile(*amountsPath)
	if err != nil {
		fatal("read amounts: %v", err)
	}
	var amounts []uint64
	if err := json.Unmarshal(raw, &amounts); err != nil {
		fatal("parse amounts: %v", err)
	}
	if len(amounts) == 0 {
		fatal("no amounts given")
	}

	salts := make([][32]byte, len(amounts))
	leaves := make([][32]byte, len(amounts))
	for i, amount := range amounts {
		if _, err := rand.Read(salts[i][:]); err != nil {
			fatal("generate salt: %v", err)
		}
		leaves[i] = merkle.Leaf(uint32(i), amount, salts[i])
	}

	tree := merkle.BuildTree(leaves)
	root := tree.Root()

	out := commitment{
		MerkleRoot: hex.EncodeToString(root[:]),
		TotalPacks: uint32(len(amounts)),
	}
	for i, amount := range amounts {
		proof, ok := tree.Proof(uint32(i))
		if !ok {
			fatal("no proof for index %d", i)
		}
		hexProof := make([]string, len(proof))
		for j, p := range proof {
			hexProof[j] = hex.EncodeToString(p[:])
		}
		out.Packs = append(out.Packs, packReveal{
			PackIndex: uint32(i),
			Amount:    amount,
			Salt:      hex.EncodeToString(salts[i][:]),
			Proof:     hexProof,
		})
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fatal("encode commitment: %v", err)
	}
	if err := os.WriteFile(*outPath, encoded, 0o600); err != nil {
		fatal("write commitment: %v", err)
	}

	fmt.Printf("merkle root: %s\n", out.MerkleRoot)
	fmt.Printf("wrote %d pack reveals to %s\n", len(out.Packs), *outPath)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
