package preview

const page = `<!DOCTYPE html>
<html>
	<head>
		<title>ratnav</title>
	</head>
	<script>
		window.setInterval(function(){
			let t = new Date().getTime()
			document.getElementById('mask').src = "/mask.png?random=" + t;
			document.getElementById('background').src = "/background.png?random=" + t;
		}, 1000);

		function setThreshold(v) {
			document.getElementById('value').textContent = v;
			fetch("/threshold", {method: "POST", body: new URLSearchParams({value: v})});
		}

		window.onload = function() {
			fetch("/threshold").then(r => r.text()).then(v => {
				document.getElementById('threshold').value = v.trim();
				document.getElementById('value').textContent = v.trim();
			});
		}
	</script>
	<body>
		<div>
			<img id="stream" src="/stream" style="max-width: 32%; height: auto;"/>
			<img id="mask" src="/mask.png" style="max-width: 32%; height: auto;"/>
			<img id="background" src="/background.png" style="max-width: 32%; height: auto;"/>
		</div>
		<div>
			<label for="threshold">Threshold</label>
			<input id="threshold" type="range" min="0" max="100" oninput="setThreshold(this.value)"/>
			<span id="value"></span>
		</div>
	</body>
</html>
`
