package bootstrap

import (
	"os"
	"strings"
)

// bannerFallbackText is used when no service name is configured.
const bannerFallbackText = "LingBridge"

// EnsureBannerFile generates the banner file from the embedded Doom font if
// it does not exist yet.
func EnsureBannerFile(filename, text string) error {
	if _, err := os.Stat(filename); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if text == "" {
		text = bannerFallbackText
	}
	return os.WriteFile(filename, []byte(renderDoom(text)), 0644)
}

// renderDoom lays the Doom font glyphs side by side, eight rows high.
// Characters outside the font render as a placeholder.
func renderDoom(text string) string {
	font := doomFont()
	rows := make([]string, 8)

	for _, ch := range strings.ToUpper(text) {
		glyph, ok := font[ch]
		if !ok {
			glyph = "? "
		}
		glyphRows := strings.Split(glyph, "\n")
		for len(glyphRows) > 0 && strings.TrimSpace(glyphRows[len(glyphRows)-1]) == "" {
			glyphRows = glyphRows[:len(glyphRows)-1]
		}
		width := 0
		for _, r := range glyphRows {
			if len(r) > width {
				width = len(r)
			}
		}
		for i := range rows {
			if i < len(glyphRows) {
				rows[i] += glyphRows[i] + strings.Repeat(" ", width-len(glyphRows[i]))
			} else {
				rows[i] += strings.Repeat(" ", width)
			}
		}
	}
	return strings.TrimRight(strings.Join(rows, "\n"), "\n")
}

// doomFont is the Doom figlet font, letters and digits only.
func doomFont() map[rune]string {
	return map[rune]string{
		'L': ` _    
| |   
| |   
| |
| |___ 
|_____|`,
		'I': ` _ 
| |
| |
| |
| |
|_|`,
		'N': ` _   _ 
| \ | |
|  \| |
| . \ |
| |\  |
| | \ |`,
		'G': ` _____ 
|  __ \
| |  \/
| | __ 
| |_\ \
 \____/
       
       `,
		'S': ` _____ 
/  ___|
\ --. 
  --. \
/\__/ /
\____/ 
       
       `,
		'T': ` ______
|_   _|
  | |  
  | |
  | |  
  \_/  `,
		'O': ` _____ 
|  _  |
| | | |
| | | |
| |_| |
\_____/`,
		'R': ` ______ 
| ___ \
| |_/ /
|    / 
| |\ \ 
\_| \_|`,
		'A': `  ___  
 / _ \ 
/ /_\ \
|  _  |
| | | |
\_| |_/
       
       `,
		'E': ` ______
|  ____|
| |__   
|  __|  
| |____ 
|______|`,
		'Y': ` __   __
\ \ / /
 \ V / 
  \ /  
  | |  
  \_/  `,
		'H': ` _   _ 
| | | |
| |_| |
|  _  |
| | | |
|_| |_|`,
		'P': ` ______ 
| ___ \
| |_/ /
|  __/ 
| |    
|_|    `,
		'C': ` _____ 
/  __ \
| /  \/
| |    
| \__/\
 \____/`,
		'D': ` ______ 
| ___ \
| | | |
| | | |
| |_| |
\____/ `,
		'F': ` ______
|  ____|
| |__   
|  __|  
| |     
|_|     `,
		'U': ` _   _ 
| | | |
| | | |
| | | |
| |_| |
 \___/ `,
		'V': `__      __
\ \    / /
 \ \  / / 
  \ \/ /  
   \  /   
    \/    `,
		'W': `__      __
\ \ /\ / /
 \ V  V / 
  \_/\_/  `,
		'X': `__   __
\ \ / /
 >  < 
/_/\_\`,
		'Z': ` ______
|___  /
   / / 
  / /  
./ /___
\_____/`,
		'B': ` ______ 
| ___ \
| |_/ /
| ___ \ 
| |_/ /
\____/ `,
		'J': `     __
    / /
    | |
    | |
/\__/ /
\____/ `,
		'K': ` _   __
| | / /
| |/ / 
|    \ 
| |\  \
|_| \_|`,
		'M': ` _   _
|  \| |
| . \ |
| |\  |
|_| \_|`,
		'Q': ` _____ 
|  _  |
| | | |
| | | |
| |_\ |
 \___\`,
		' ': `   
   
   
   
   
   
   
   `,
		'0': ` _____ 
|  _  |
| | | |
| | | |
| |_| |
\_____/`,
		'1': `  __
 /  |
| | 
| | 
| | 
| | 
|_| `,
		'2': ` _____ 
/ __  \
| |  \/
| | __ 
| |_\ \
 \____/`,
		'3': ` _____ 
|____ |
    / /
    \ \
.___/ /
\____/ `,
		'4': `   ___ 
  /   |
 / /| |
/ /_| |
\___  |
    |_|`,
		'5': ` ______
|____ |
    / /
    \ \
.___/ /
\____/ `,
		'6': `  ____ 
 / ___|
/ /___ 
| ___ \
| \_/ |
\_____/`,
		'7': ` ______
|___  /
   / / 
  / /  
./ /   
\_/    `,
		'8': ` _____ 
|  _  |
 \ V / 
 / _ \ 
| |_| |
\_____/`,
		'9': ` _____ 
|  _  |
| |_| |
\____ |
.___/ /
\____/ `,
	}
}
