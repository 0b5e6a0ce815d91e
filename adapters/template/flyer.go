package snapshottemplate

// FlyerKind is the built-in co-branded flyer.
const FlyerKind = "flyer"

const flyerSource = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<style>
body { margin: 0; font-family: Helvetica, Arial, sans-serif; }
#flyer { width: {{ width }}px; height: {{ height }}px; box-sizing: border-box; padding: 36px; background: {{ background }}; color: {{ color }}; display: flex; flex-direction: column; }
#flyer header { display: flex; justify-content: space-between; align-items: center; height: 72px; }
#flyer header img { max-height: 72px; max-width: 200px; }
#flyer h1 { font-size: 40px; line-height: 1.1; margin: 36px 0 18px; }
#flyer .body { font-size: 18px; line-height: 1.5; flex: 1; }
#flyer .hero { width: 100%; height: 260px; object-fit: cover; border-radius: 8px; }
#flyer footer { border-top: 2px solid {{ accent }}; padding-top: 18px; font-size: 14px; display: flex; justify-content: space-between; }
</style>
</head>
<body>
<div id="flyer">
  <header>
    {% if primary_logo %}<img class="logo" src="{{ primary_logo }}" alt="">{% endif %}
    {% if partner_logo %}<img class="logo" src="{{ partner_logo }}" alt="">{% endif %}
  </header>
  <h1>{{ headline }}</h1>
  {% if hero %}<img class="hero" src="{{ hero }}" alt="">{% endif %}
  <div class="body">{{ body|escape|linebreaksbr|safe }}</div>
  <footer>
    <div>{{ contact_name }}{% if contact_title %}<br>{{ contact_title }}{% endif %}</div>
    <div>{% if contact_phone %}{{ contact_phone }}<br>{% endif %}{{ contact_email }}</div>
  </footer>
</div>
</body>
</html>`

// FlyerDefinition returns the built-in flyer: 612x792 px, rooted at #flyer.
func FlyerDefinition() Definition {
	return Definition{
		Source:       flyerSource,
		RootSelector: "#flyer",
		Width:        612,
		Height:       792,
		Defaults: map[string]any{
			"background": "#ffffff",
			"color":      "#1f2933",
			"accent":     "#0b6bcb",
		},
	}
}
