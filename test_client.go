package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"log"
	"net/http"
	"time"
)

const baseURL = "http://localhost:7777"

func main() {
	fmt.Println("=== ТЕСТОВЫЙ КЛИЕНТ ДЛЯ ПАЙПЛАЙНА ТАЙЛОВ ===")

	client := &http.Client{Timeout: 10 * time.Second}

	// Тест 1: Создание группы тайлов
	fmt.Println("\n=== ТЕСТ 1: СОЗДАНИЕ ГРУППЫ ===")
	id := testCreateTile(client)
	if id == "" {
		log.Fatal("❌ Группа не создана, дальнейшие тесты невозможны")
	}

	// Тест 2: Ожидание завершения пайплайна
	fmt.Println("\n=== ТЕСТ 2: ОЖИДАНИЕ ПАЙПЛАЙНА ===")
	testWaitForPipeline(client, id)

	// Тест 3: Листинг групп
	fmt.Println("\n=== ТЕСТ 3: ЛИСТИНГ ГРУПП ===")
	testListTiles(client, id)

	// Тест 4: Правка landcover и пересинтез
	fmt.Println("\n=== ТЕСТ 4: ПРАВКА LANDCOVER ===")
	testEditLandcover(client, id)

	fmt.Println("\n=== ТЕСТИРОВАНИЕ ЗАВЕРШЕНО ===")
}

func testCreateTile(client *http.Client) string {
	body := map[string]interface{}{
		"coords":     [][2]float64{{37.60, 55.74}, {37.64, 55.74}, {37.64, 55.76}, {37.60, 55.76}},
		"zoom":       13,
		"islandMask": true,
	}
	data, _ := json.Marshal(body)

	fmt.Printf("📤 POST /tile (%d байт)\n", len(data))
	resp, err := client.Post(baseURL+"/tile", "application/json", bytes.NewReader(data))
	if err != nil {
		log.Printf("❌ Ошибка запроса: %v", err)
		return ""
	}
	defer resp.Body.Close()

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		log.Printf("❌ Ошибка декодирования ответа: %v", err)
		return ""
	}

	fmt.Printf("✅ Группа создана: %s (статус %d)\n", created.ID, resp.StatusCode)
	return created.ID
}

func testWaitForPipeline(client *http.Client, id string) {
	for i := 0; i < 60; i++ {
		resp, err := client.Get(fmt.Sprintf("%s/tile/%s/status", baseURL, id))
		if err != nil {
			log.Printf("❌ Ошибка запроса статуса: %v", err)
			return
		}

		var status struct {
			Stage string `json:"stage"`
		}
		err = json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if err != nil {
			log.Printf("❌ Ошибка декодирования статуса: %v", err)
			return
		}

		fmt.Printf("⏳ Стадия: %s\n", status.Stage)
		if status.Stage == "heightmap_ready" {
			fmt.Println("✅ Пайплайн завершён")
			return
		}
		time.Sleep(time.Second)
	}
	log.Println("❌ Пайплайн не завершился за отведённое время")
}

func testListTiles(client *http.Client, id string) {
	resp, err := client.Get(baseURL + "/tiles")
	if err != nil {
		log.Printf("❌ Ошибка запроса листинга: %v", err)
		return
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	var summaries []map[string]interface{}
	if err := json.Unmarshal(data, &summaries); err != nil {
		log.Printf("❌ Ошибка декодирования листинга: %v", err)
		return
	}

	fmt.Printf("📋 Групп в хранилище: %d\n", len(summaries))
	for _, s := range summaries {
		if s["id"] == id {
			fmt.Printf("✅ Созданная группа найдена: landcover=%v heightmap=%v\n", s["landcover"], s["heightmap"])
			return
		}
	}
	log.Printf("❌ Группа %s отсутствует в листинге", id)
}

func testEditLandcover(client *http.Client, id string) {
	// Рисуем правку: растр, полностью залитый водой
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	water := color.RGBA{R: 0x41, G: 0x9B, B: 0xDF, A: 0xFF}
	draw.Draw(img, img.Bounds(), image.NewUniform(water), image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		log.Printf("❌ Ошибка кодирования правки: %v", err)
		return
	}

	body := map[string]string{
		"image": "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}
	data, _ := json.Marshal(body)

	fmt.Printf("📤 POST /tile/%s/landcover (%d байт)\n", id, len(data))
	resp, err := client.Post(fmt.Sprintf("%s/tile/%s/landcover", baseURL, id), "application/json", bytes.NewReader(data))
	if err != nil {
		log.Printf("❌ Ошибка запроса правки: %v", err)
		return
	}
	defer resp.Body.Close()

	text, _ := io.ReadAll(resp.Body)
	fmt.Printf("✅ Ответ (%d): %s\n", resp.StatusCode, string(text))
}
