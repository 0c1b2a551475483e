package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	get "github.com/hashicorp/go-getter"
)

// tilesetfetch downloads a tileset/graph asset pack into the local
// asset directory. Sources follow go-getter syntax, e.g.
// git::https://example.com/packs.git//tilesets or a plain https URL.
func main() {
	var (
		src   = flag.String("src", "", "asset pack source url")
		out   = flag.String("o", "./assets", "output directory")
		name  = flag.String("name", "", "subdirectory name for the pack")
		clean = flag.Bool("clean", false, "remove existing pack directory first")
	)
	flag.Parse()

	if *src == "" {
		log.Fatal("a -src url is required")
	}
	if *out == "" {
		log.Fatal("an output directory is required")
	}

	dest := *out
	if *name != "" {
		dest = filepath.Join(*out, *name)
	}

	if *clean {
		if err := os.RemoveAll(dest); err != nil {
			log.Fatalf("clean pack directory: %v", err)
		}
	}

	log.Printf("downloading asset pack %s -> %s", *src, dest)
	if err := get.Get(dest, *src); err != nil {
		log.Fatalf("download asset pack: %v", err)
	}
	log.Printf("done downloading asset pack %s", dest)
}
