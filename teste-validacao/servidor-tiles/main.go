package main

// Backend falso do quadro para validar o mapsched localmente:
//
//	go run ./teste-validacao/servidor-tiles
//	TILES_BASE_URL=http://localhost:8081 go run ./cmd/mapsched serve
//	curl -o map.png 'localhost:8080/api/map/snapshot?loc=25.033,121.5654,Taipei'
//
// Os tiles são xadrezes coloridos por nível, o bastante para ver o
// enquadramento e os alfinetes. MAP_ENABLED=false simula o mapa desligado.

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"os"
)

const tileSize = 512

func main() {
	mapEnabled := os.Getenv("MAP_ENABLED") != "false"

	http.HandleFunc("/api/available-tilesets", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !mapEnabled {
			fmt.Fprint(w, `{"success":true,"map_enabled":false,"message":"map disabled by MAP_ENABLED"}`)
			return
		}
		fmt.Fprint(w, `{"success":true,"map_enabled":true,"layer_mode":"single","tilesets":[{"name":"demo"}]}`)
	})

	http.HandleFunc("/tiles/demo/style.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"version":8,"sources":{"demo":{"type":"raster","tiles":["/tiles/demo/{z}/{x}/{y}.png"],"tileSize":%d,"minzoom":0,"maxzoom":16}}}`, tileSize)
	})

	http.HandleFunc("/tiles/demo/", func(w http.ResponseWriter, r *http.Request) {
		var z, x, y int
		if _, err := fmt.Sscanf(r.URL.Path, "/tiles/demo/%d/%d/%d.png", &z, &x, &y); err != nil {
			http.NotFound(w, r)
			return
		}
		fmt.Printf("Log: tile %d/%d/%d\n", z, x, y)
		w.Header().Set("Content-Type", "image/png")
		_ = png.Encode(w, checker(z, x, y))
	})

	fmt.Println("Servidor de tiles rodando em http://localhost:8081")
	if err := http.ListenAndServe(":8081", nil); err != nil {
		fmt.Printf("Erro ao subir o servidor: %s\n", err)
	}
}

func checker(z, x, y int) *image.RGBA {
	base := color.RGBA{uint8(40 + z*12), uint8(120 + (x%8)*10), uint8(160 + (y%8)*10), 0xFF}
	alt := color.RGBA{base.R / 2, base.G / 2, base.B / 2, 0xFF}

	img := image.NewRGBA(image.Rect(0, 0, tileSize, tileSize))
	const cell = tileSize / 8
	for py := 0; py < tileSize; py++ {
		for px := 0; px < tileSize; px++ {
			c := base
			if (px/cell+py/cell)%2 == 1 {
				c = alt
			}
			img.SetRGBA(px, py, c)
		}
	}
	return img
}
