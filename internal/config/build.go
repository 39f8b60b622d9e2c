package config

import "git.home.luguber.info/inful/assetpipe/internal/foundation/normalization"

var scriptTargetNormalizer = normalization.NewNormalizer("script target", map[string]string{
	"es2015": "es2015",
	"es2016": "es2016",
	"es2017": "es2017",
	"es2018": "es2018",
	"es2019": "es2019",
	"es2020": "es2020",
	"es2021": "es2021",
	"es2022": "es2022",
	"esnext": "esnext",
}, defaultScriptTarget)
