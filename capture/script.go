package capture

import (
	"encoding/base64"
	"encoding/binary"
	"strings"
	"unicode/utf16"
)

// Alias is the MCI device alias the recorder opens.
const Alias = "recsound"

const scriptTemplate = `$ErrorActionPreference = 'Stop'
$sig = '[DllImport("winmm.dll", CharSet = CharSet.Unicode)] public static extern int mciSendString(string command, System.Text.StringBuilder buffer, int bufferSize, System.IntPtr hwndCallback);'
$mci = Add-Type -MemberDefinition $sig -Name Mci -Namespace VoiceAI -PassThru
function Send-Mci([string]$command) { return $mci::mciSendString($command, $null, 0, [System.IntPtr]::Zero) }
$rc = Send-Mci 'open new Type waveaudio Alias {{alias}}'
if ($rc -ne 0) { [Console]::Error.WriteLine("mci open failed: $rc"); exit 2 }
$rc = Send-Mci 'record {{alias}}'
if ($rc -ne 0) { Send-Mci 'close {{alias}}' | Out-Null; [Console]::Error.WriteLine("mci record failed: $rc"); exit 2 }
[Console]::Out.WriteLine('RECORDING_STARTED')
[Console]::Out.Flush()
[void][Console]::In.ReadLine()
Send-Mci 'stop {{alias}}' | Out-Null
$rc = Send-Mci 'save {{alias}} "{{path}}"'
Send-Mci 'close {{alias}}' | Out-Null
if ($rc -ne 0) { [Console]::Error.WriteLine("mci save failed: $rc"); exit 3 }
[Console]::Out.WriteLine('RECORDING_SAVED:{{path}}')
[Console]::Out.Flush()
`

// Script renders the PowerShell recorder for outputPath. The path lands
// inside single-quoted PowerShell strings, so quotes in it are doubled.
func Script(outputPath string) string {
	quoted := strings.ReplaceAll(outputPath, "'", "''")
	return strings.NewReplacer("{{alias}}", Alias, "{{path}}", quoted).Replace(scriptTemplate)
}

// EncodeCommand produces the argument for powershell -EncodedCommand:
// base64 over UTF-16LE.
func EncodeCommand(script string) string {
	units := utf16.Encode([]rune(script))
	buf := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[i*2:], u)
	}
	return base64.StdEncoding.EncodeToString(buf)
}
