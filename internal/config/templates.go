package config

import (
	"fmt"
	"os"
)

func Template() string {
	return wheelctlTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(wheelctlTemplate), 0o644)
}

const wheelctlTemplate = `namespace = ".venv_offline"
artifact_dir = "wheels_offline"
python = "python3"
teardown = false
confirm = true

[[manifests]]
name = "primary"
source = "requirements/primary.txt"

[[manifests]]
name = "secondary"
source = "requirements/secondary.txt"

[fetch]
mode = "manifest"
download_all = true
flatten_first = false
platforms = ["any", "win_amd64"]
python_versions = ["3.13", "3.12", "3.11", "3", "3.14", "3.15", "3.16"]
implementations = ["cp", "py"]
only_binary = true

[fetch.companions]
pyautogui = ["setuptools", "wheel"]

[install]
offline = true

[script]
path = "installation-instructions.sh"
format = "sh"

[metrics]
textfile = ""
`
