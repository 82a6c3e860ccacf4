package search

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// systemPrompt frames the model as a pricing expert. The whole prompt
// surface is Spanish; the model answers markedly better on regional
// pricing when addressed in the market's language.
const systemPrompt = "Eres un experto en precios internacionales de productos. " +
	"Analiza cuidadosamente las diferencias de precios entre países considerando " +
	"impuestos, aranceles y poder adquisitivo. Responde SIEMPRE con JSON válido y " +
	"precios coherentes con el mercado actual."

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

const promptTemplate = `Eres un experto en precios internacionales de productos tecnológicos y retail. Tu misión es proporcionar precios REALES y ACTUALIZADOS basados en datos de mercado de {month} {year}.

PRODUCTO A BUSCAR: "{query}"

INSTRUCCIONES CRÍTICAS PARA PRECIOS COHERENTES:
1. Los precios deben reflejar valores REALES de mercado en cada país (no estimaciones)
2. IMPORTANTE: Para USD, GBP y EUR usa el formato con decimales (ej: 12.99, 9.99, 799.00)
3. Para CLP y ARS usa valores enteros sin decimales (ej: 7990, 15000)
4. Considera las diferencias económicas entre países:
   - Chile (CLP): Productos tech suelen costar 10-20% más que USA convertido
   - Argentina (ARS): Incluye impuesto PAIS (30%) y percepción (45%) en productos importados
   - USA (USD): Precios base sin tax (se agrega al comprar) - USA DECIMALES
   - Brasil (BRL): Productos importados tienen ~60% de impuestos - USA DECIMALES
   - UK (GBP): Incluye VAT 20% en el precio mostrado - USA DECIMALES
   - EU (EUR): Incluye VAT 19-21% en el precio mostrado - USA DECIMALES

REGLAS DE EXTRACCIÓN DE PRECIOS:
1. Busca el MISMO modelo exacto (misma generación, capacidad, año)
2. Si hay múltiples versiones, usa la configuración base/estándar
3. Precio debe ser de vendedores oficiales o grandes retailers
4. Para smartphones: misma capacidad de almacenamiento
5. Para notebooks: mismas specs principales (procesador, RAM, almacenamiento)
6. Si el producto no existe en un país, usa null (NO inventes precios)

VALIDACIÓN DE COHERENCIA (Precios aproximados {month} {year}):
- Nescafé Gold 200g: Chile ~7.990 CLP, USA ~12.99 USD, Argentina ~15.000 ARS
- iPhone 15 Pro 128GB: Chile ~1.200.000 CLP, USA ~999 USD, Argentina ~2.000.000 ARS
- MacBook Air M2: Chile ~1.100.000 CLP, USA ~1099 USD, Brasil ~7.500 BRL
- PlayStation 5: Chile ~600.000 CLP, USA ~499 USD, UK ~480 GBP
- Samsung Galaxy S24: Chile ~900.000 CLP, USA ~799 USD, EU ~899 EUR

URLs DE REFERENCIA (usa el término de búsqueda correcto):
- Chile: https://www.falabella.com/falabella-cl/search?Ntt={escaped}
- Argentina: https://listado.mercadolibre.com.ar/{meli}
- USA: https://www.amazon.com/s?k={escaped}
- Brasil: https://www.americanas.com.br/s?q={escaped}
- UK: https://www.amazon.co.uk/s?k={escaped}
- EU: https://www.amazon.de/s?k={escaped}

FORMATO JSON (sin espacios, una línea):
{
  "product": "nombre comercial exacto",
  "chile": precio_CLP_sin_puntos,
  "argentina": precio_ARS_sin_puntos,
  "usa": precio_USD_con_decimales,
  "brazil": precio_BRL_con_decimales,
  "uk": precio_GBP_con_decimales,
  "eu": precio_EUR_con_decimales,
  "urls": {
    "chile": "url_búsqueda",
    "argentina": "url_búsqueda",
    "usa": "url_búsqueda",
    "brazil": "url_búsqueda",
    "uk": "url_búsqueda",
    "eu": "url_búsqueda"
  },
  "confidence": 1-100_basado_en_certeza,
  "source": "retailers oficiales {year}",
  "last_checked": "{date}"
}

RESPONDE SOLO:
<JSON>{"product":"...","chile":...,"argentina":...,"usa":...,"brazil":...,"uk":...,"eu":...,"urls":{...},"confidence":...,"source":"...","last_checked":"..."}</JSON>`

// buildPrompt renders the user prompt for query with the current month
// and year so the model anchors prices in time.
func buildPrompt(query string, now time.Time) string {
	escaped := encodeQuery(query)
	r := strings.NewReplacer(
		"{query}", query,
		"{month}", spanishMonths[now.Month()-1],
		"{year}", strconv.Itoa(now.Year()),
		"{date}", now.Format("2006-01-02"),
		"{escaped}", escaped,
		// Mercado Libre uses dash-separated path segments instead of a
		// query parameter.
		"{meli}", strings.ReplaceAll(escaped, "%20", "-"),
	)
	return r.Replace(promptTemplate)
}

// encodeQuery escapes query for the retailer search URLs, keeping spaces
// as %20 rather than '+'.
func encodeQuery(q string) string {
	return strings.ReplaceAll(url.QueryEscape(q), "+", "%20")
}
